package ports

import "github.com/tokenfund/mintd/internal/core/domain"

type RepoManager interface {
	Checkpoints() domain.CheckpointRepository
	Attempts() domain.AttemptRepository
	Close()
}
