package ports

import "context"

type MetadataProvider interface {
	PolicyID(ctx context.Context) (string, error)
	PolicyScriptFile() string
	// MetadataFile returns the path of the token's metadata document.
	MetadataFile(ctx context.Context, tokenID int) (string, error)
	// AssetName returns the hex encoded on-chain name of the token.
	AssetName(tokenID int) string
}

type PayerResolver interface {
	// ResolvePayer returns the address that funded the given transaction.
	ResolvePayer(ctx context.Context, txHash string) (string, error)
}
