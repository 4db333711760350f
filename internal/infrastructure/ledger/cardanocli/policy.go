package cardanocli

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
)

func (c *client) GenerateKeys(
	ctx context.Context, verificationKeyFile, signingKeyFile string,
) error {
	for _, file := range []string{verificationKeyFile, signingKeyFile} {
		if err := ensureDir(file); err != nil {
			return err
		}
	}

	_, stderr, err := c.run(ctx,
		"address", "key-gen",
		"--verification-key-file", verificationKeyFile,
		"--signing-key-file", signingKeyFile,
	)
	if err != nil || len(strings.TrimSpace(string(stderr))) > 0 {
		return fmt.Errorf("failed to generate policy keys: %s", failureReason(stderr, err))
	}
	return nil
}

func (c *client) KeyHash(ctx context.Context, verificationKeyFile string) (string, error) {
	stdout, stderr, err := c.run(ctx,
		"address", "key-hash", "--payment-verification-key-file", verificationKeyFile,
	)
	if err != nil || len(strings.TrimSpace(string(stderr))) > 0 {
		return "", fmt.Errorf("failed to hash %s: %s", verificationKeyFile, failureReason(stderr, err))
	}
	return parseHash("key hash", stdout)
}

func (c *client) PolicyID(ctx context.Context, scriptFile string) (string, error) {
	stdout, stderr, err := c.run(ctx, "transaction", "policyid", "--script-file", scriptFile)
	if err != nil || len(strings.TrimSpace(string(stderr))) > 0 {
		return "", fmt.Errorf(
			"failed to compute policy id of %s: %s", scriptFile, failureReason(stderr, err),
		)
	}
	return parseHash("policy id", stdout)
}

// parseHash expects a single 28 bytes hex hash.
func parseHash(what string, out []byte) (string, error) {
	hash := strings.TrimSpace(string(out))
	if buf, err := hex.DecodeString(hash); err != nil || len(buf) != 28 {
		return "", malformed(what, hash)
	}
	return hash, nil
}
