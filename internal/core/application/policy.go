package application

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/tokenfund/mintd/internal/core/ports"
)

const (
	policyVerificationKey = "policy.vkey"
	policyScriptName      = "policy.script"
	policyIDName          = "policyID"
)

type PolicyService interface {
	// Create writes a policy that requires the policy key and closes
	// mintableTime slots after the current tip.
	Create(ctx context.Context, mintableTime uint64) (*Policy, error)
}

type Policy struct {
	ID         string
	KeyHash    string
	ExpirySlot uint64
	ScriptFile string
}

type policyScript struct {
	Type    string         `json:"type"`
	Slot    uint64         `json:"slot,omitempty"`
	KeyHash string         `json:"keyHash,omitempty"`
	Scripts []policyScript `json:"scripts,omitempty"`
}

type policyService struct {
	chain          ports.ChainQuerier
	tooling        ports.PolicyTooling
	dir            string
	signingKeyFile string
}

// NewPolicyService prepares the policy files under dir. The policy key pair
// is generated only when signingKeyFile does not exist yet.
func NewPolicyService(
	chain ports.ChainQuerier, tooling ports.PolicyTooling, dir, signingKeyFile string,
) (PolicyService, error) {
	if chain == nil {
		return nil, fmt.Errorf("missing chain querier")
	}
	if tooling == nil {
		return nil, fmt.Errorf("missing policy tooling")
	}
	if dir == "" {
		return nil, fmt.Errorf("missing policy dir")
	}
	if signingKeyFile == "" {
		signingKeyFile = filepath.Join(dir, "policy.skey")
	}
	return &policyService{chain, tooling, dir, signingKeyFile}, nil
}

func (s *policyService) Create(ctx context.Context, mintableTime uint64) (*Policy, error) {
	if mintableTime == 0 {
		return nil, fmt.Errorf("invalid mintable time, must be greater than zero")
	}

	vkeyFile := filepath.Join(s.dir, policyVerificationKey)
	if _, err := os.Stat(s.signingKeyFile); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if err := s.tooling.GenerateKeys(ctx, vkeyFile, s.signingKeyFile); err != nil {
			return nil, err
		}
		log.Infof("generated policy keys in %s", s.dir)
	}

	keyHash, err := s.tooling.KeyHash(ctx, vkeyFile)
	if err != nil {
		return nil, err
	}
	tip, err := s.chain.CurrentSlot(ctx)
	if err != nil {
		return nil, err
	}
	expiry := tip + mintableTime

	script := policyScript{
		Type: "all",
		Scripts: []policyScript{
			{Type: "before", Slot: expiry},
			{Type: "sig", KeyHash: keyHash},
		},
	}
	buf, err := json.Marshal(script)
	if err != nil {
		return nil, err
	}
	scriptFile := filepath.Join(s.dir, policyScriptName)
	if err := os.WriteFile(scriptFile, buf, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write policy script: %w", err)
	}

	policyID, err := s.tooling.PolicyID(ctx, scriptFile)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(
		filepath.Join(s.dir, policyIDName), []byte(policyID+"\n"), 0o644,
	); err != nil {
		return nil, fmt.Errorf("failed to write policy id: %w", err)
	}

	log.Infof("policy %s closes at slot %d", policyID, expiry)
	return &Policy{
		ID:         policyID,
		KeyHash:    keyHash,
		ExpirySlot: expiry,
		ScriptFile: scriptFile,
	}, nil
}
