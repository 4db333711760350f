package application

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testKeyHash = strings.Repeat("ab", 28)

func TestCreatePolicy(t *testing.T) {
	t.Run("new keys", func(t *testing.T) {
		dir := t.TempDir()
		skey := filepath.Join(dir, "policy.skey")
		vkey := filepath.Join(dir, "policy.vkey")
		scriptFile := filepath.Join(dir, "policy.script")

		chain := &mockLedger{}
		chain.On("CurrentSlot", mock.Anything).Return(uint64(1000), nil)
		tooling := &mockPolicyTooling{}
		tooling.On("GenerateKeys", mock.Anything, vkey, skey).Return(nil)
		tooling.On("KeyHash", mock.Anything, vkey).Return(testKeyHash, nil)
		tooling.On("PolicyID", mock.Anything, scriptFile).Return(testPolicyID, nil)

		svc, err := NewPolicyService(chain, tooling, dir, "")
		require.NoError(t, err)

		policy, err := svc.Create(context.Background(), 86400)
		require.NoError(t, err)
		require.Equal(t, &Policy{
			ID:         testPolicyID,
			KeyHash:    testKeyHash,
			ExpirySlot: 87400,
			ScriptFile: scriptFile,
		}, policy)

		script, err := os.ReadFile(scriptFile)
		require.NoError(t, err)
		require.JSONEq(t, fmt.Sprintf(`{"type": "all", "scripts": [
			{"type": "before", "slot": 87400},
			{"type": "sig", "keyHash": "%s"}
		]}`, testKeyHash), string(script))

		id, err := os.ReadFile(filepath.Join(dir, "policyID"))
		require.NoError(t, err)
		require.Equal(t, testPolicyID, strings.TrimSpace(string(id)))
		tooling.AssertExpectations(t)
	})

	t.Run("existing keys", func(t *testing.T) {
		dir := t.TempDir()
		skey := filepath.Join(dir, "mint.skey")
		require.NoError(t, os.WriteFile(skey, []byte("{}"), 0o600))

		chain := &mockLedger{}
		chain.On("CurrentSlot", mock.Anything).Return(uint64(5), nil)
		tooling := &mockPolicyTooling{}
		tooling.On("KeyHash", mock.Anything, mock.Anything).Return(testKeyHash, nil)
		tooling.On("PolicyID", mock.Anything, mock.Anything).Return(testPolicyID, nil)

		svc, err := NewPolicyService(chain, tooling, dir, skey)
		require.NoError(t, err)

		policy, err := svc.Create(context.Background(), 10)
		require.NoError(t, err)
		require.Equal(t, uint64(15), policy.ExpirySlot)
		tooling.AssertNotCalled(t, "GenerateKeys", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("invalid", func(t *testing.T) {
		dir := t.TempDir()
		skey := filepath.Join(dir, "policy.skey")
		require.NoError(t, os.WriteFile(skey, []byte("{}"), 0o600))

		fixtures := []struct {
			name         string
			mintableTime uint64
			slotErr      error
			hashErr      error
			expected     string
		}{
			{"zero mintable time", 0, nil, nil, "invalid mintable time"},
			{"key hash failure", 10, nil, fmt.Errorf("bad key"), "bad key"},
			{"tip failure", 10, fmt.Errorf("node down"), nil, "node down"},
		}
		for _, f := range fixtures {
			t.Run(f.name, func(t *testing.T) {
				chain := &mockLedger{}
				chain.On("CurrentSlot", mock.Anything).Return(uint64(0), f.slotErr)
				tooling := &mockPolicyTooling{}
				tooling.On("KeyHash", mock.Anything, mock.Anything).Return(testKeyHash, f.hashErr)

				svc, err := NewPolicyService(chain, tooling, dir, skey)
				require.NoError(t, err)

				_, err = svc.Create(context.Background(), f.mintableTime)
				require.ErrorContains(t, err, f.expected)
				_, statErr := os.Stat(filepath.Join(dir, "policyID"))
				require.True(t, os.IsNotExist(statErr))
			})
		}
	})
}
