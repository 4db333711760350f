package filemetadata

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tokenfund/mintd/internal/core/ports"
	"github.com/tokenfund/mintd/pkg/errors"
)

const (
	DefaultAssetPrefix = "TokenFund"

	policyDir        = "policy"
	policyIDFile     = "policyID"
	policyScriptFile = "policy.script"
	metadataDir      = "metadata"
	cip25Label       = "721"
)

type service struct {
	workDir     string
	assetPrefix string

	lock       sync.Mutex
	policyID   string
	assetNames map[int]string
}

// NewService reads policy and token metadata prepared under workDir.
func NewService(workDir, assetPrefix string) (ports.MetadataProvider, error) {
	if workDir == "" {
		return nil, fmt.Errorf("missing work dir")
	}
	if assetPrefix == "" {
		assetPrefix = DefaultAssetPrefix
	}
	return &service{
		workDir:     workDir,
		assetPrefix: assetPrefix,
		assetNames:  make(map[int]string),
	}, nil
}

func (s *service) PolicyID(_ context.Context) (string, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.policyID != "" {
		return s.policyID, nil
	}

	path := filepath.Join(s.workDir, policyDir, policyIDFile)
	buf, err := os.ReadFile(path)
	if err != nil {
		return "", errors.METADATA_UNAVAILABLE.Wrap(err).
			WithMetadata(errors.MetadataUnavailableMetadata{Path: path})
	}
	policyID := strings.TrimSpace(string(buf))
	if _, err := hex.DecodeString(policyID); err != nil || len(policyID) != 56 {
		return "", errors.METADATA_UNAVAILABLE.New("invalid policy id %q", policyID).
			WithMetadata(errors.MetadataUnavailableMetadata{Path: path})
	}

	s.policyID = policyID
	return policyID, nil
}

func (s *service) PolicyScriptFile() string {
	return filepath.Join(s.workDir, policyDir, policyScriptFile)
}

// MetadataFile checks the token's CIP-25 document is keyed under the minting
// policy with a single asset name, and records that name for AssetName.
func (s *service) MetadataFile(ctx context.Context, tokenID int) (string, error) {
	path := filepath.Join(s.workDir, metadataDir, fmt.Sprintf("metadata%d.json", tokenID))
	fail := func(err error) (string, error) {
		return "", errors.METADATA_UNAVAILABLE.Wrap(err).
			WithMetadata(errors.MetadataUnavailableMetadata{TokenID: tokenID, Path: path})
	}

	policyID, err := s.PolicyID(ctx)
	if err != nil {
		return "", err
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		return fail(err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(buf, &doc); err != nil {
		return fail(fmt.Errorf("invalid metadata document: %w", err))
	}
	label, ok := doc[cip25Label]
	if !ok {
		return fail(fmt.Errorf("metadata document has no %s label", cip25Label))
	}
	var policies map[string]json.RawMessage
	if err := json.Unmarshal(label, &policies); err != nil {
		return fail(fmt.Errorf("invalid %s label: %w", cip25Label, err))
	}
	entry, ok := policies[policyID]
	if !ok {
		return fail(fmt.Errorf("metadata document has no entry for policy %s", policyID))
	}
	var assets map[string]json.RawMessage
	if err := json.Unmarshal(entry, &assets); err != nil {
		return fail(fmt.Errorf("invalid entry for policy %s: %w", policyID, err))
	}
	if len(assets) != 1 {
		return fail(fmt.Errorf(
			"metadata document must name exactly one asset under policy %s, got %d",
			policyID, len(assets),
		))
	}

	var name string
	for key := range assets {
		name = key
	}
	if name == "" {
		return fail(fmt.Errorf("metadata document has an empty asset name"))
	}

	s.lock.Lock()
	s.assetNames[tokenID] = name
	s.lock.Unlock()
	return path, nil
}

// AssetName returns the hex encoded name read from the token's metadata, or
// the prefix based name when the metadata was not read yet.
func (s *service) AssetName(tokenID int) string {
	s.lock.Lock()
	name, ok := s.assetNames[tokenID]
	s.lock.Unlock()
	if !ok {
		name = fmt.Sprintf("%s%05d", s.assetPrefix, tokenID)
	}
	return hex.EncodeToString([]byte(name))
}
