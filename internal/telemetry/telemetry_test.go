package telemetry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/tokenfund/mintd/internal/telemetry"
)

func TestInitOtelSDK(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		shutdown, err := telemetry.InitOtelSDK(
			context.Background(), "http://127.0.0.1:4318", time.Minute,
		)
		require.NoError(t, err)
		require.NotNil(t, shutdown)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		// Nothing listens on the collector port, only make sure it returns.
		_ = shutdown(ctx)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := telemetry.InitOtelSDK(context.Background(), "", time.Minute)
		require.Error(t, err)
		_, err = telemetry.InitOtelSDK(context.Background(), "http://127.0.0.1:4318", 0)
		require.Error(t, err)
	})
}

func TestOTelHook(t *testing.T) {
	hook := telemetry.NewOTelHook()
	require.Equal(t, log.AllLevels, hook.Levels())

	logger := log.New()
	entry := logger.WithError(errors.New("boom")).WithField("token_id", 3)
	entry.Message = "mint failed"
	entry.Level = log.ErrorLevel
	entry.Time = time.Now()
	require.NoError(t, hook.Fire(entry))
}

func TestInitPyroscopeDisabled(t *testing.T) {
	shutdown, err := telemetry.InitPyroscope("")
	require.NoError(t, err)
	require.Nil(t, shutdown)
}
