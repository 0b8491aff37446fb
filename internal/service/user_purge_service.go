package service

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-course-api/internal/campus"
	"github.com/noah-isme/campus-course-api/internal/dto"
	"github.com/noah-isme/campus-course-api/internal/models"
	"github.com/noah-isme/campus-course-api/internal/remote"
	"github.com/noah-isme/campus-course-api/pkg/jobs"
)

const purgeJobType = "purge_user"

type userDeleter interface {
	DeleteUser(ctx context.Context, userID int64) (models.UserRole, error)
}

type purgePayload struct {
	UserID int64
	Peer   campus.Campus
}

// UserPurgeServiceConfig wires UserPurgeService.
type UserPurgeServiceConfig struct {
	Deleter    userDeleter
	Peers      []campus.Campus
	Remote     delegateCaller
	Workers    int
	Retries    int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

// UserPurgeService removes a user's rows from every campus shard: the local
// shard synchronously, peers through a retrying background queue.
type UserPurgeService struct {
	deleter userDeleter
	peers   []campus.Campus
	remote  delegateCaller
	queue   *jobs.Queue
	logger  *zap.Logger
}

// NewUserPurgeService constructs UserPurgeService. Call Start before Purge.
func NewUserPurgeService(cfg UserPurgeServiceConfig) *UserPurgeService {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	peers := append([]campus.Campus(nil), cfg.Peers...)
	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })

	s := &UserPurgeService{
		deleter: cfg.Deleter,
		peers:   peers,
		remote:  cfg.Remote,
		logger:  cfg.Logger,
	}
	s.queue = jobs.NewQueue("user-purge", s.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.Retries,
		RetryDelay: cfg.RetryDelay,
		OnDrop:     s.onDrop,
		Logger:     cfg.Logger,
	})
	return s
}

// Start launches the purge workers.
func (s *UserPurgeService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers. Pending peer purges are abandoned.
func (s *UserPurgeService) Stop() {
	s.queue.Stop()
}

// Purge runs the local cleanup for userID and schedules the same cleanup on
// every peer campus.
func (s *UserPurgeService) Purge(ctx context.Context, userID int64) (*dto.PurgeUserResponse, error) {
	role, err := s.deleter.DeleteUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	queued := make([]string, 0, len(s.peers))
	for _, peer := range s.peers {
		job := jobs.Job{Type: purgeJobType, Payload: purgePayload{UserID: userID, Peer: peer}}
		if err := s.queue.Enqueue(job); err != nil {
			s.logger.Error("failed to schedule peer purge",
				zap.Int64("user_id", userID),
				zap.String("peer", string(peer)),
				zap.Error(err),
			)
			continue
		}
		queued = append(queued, string(peer))
	}

	s.logger.Info("user purged locally",
		zap.Int64("user_id", userID),
		zap.String("role", string(role)),
		zap.Strings("peers_queued", queued),
	)
	return &dto.PurgeUserResponse{UserID: userID, Role: string(role), PeersQueued: queued}, nil
}

func (s *UserPurgeService) handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(purgePayload)
	if !ok {
		return fmt.Errorf("unexpected purge payload %T", job.Payload)
	}
	result := s.remote.Call(ctx, remote.Request{
		Campus: payload.Peer,
		Method: http.MethodDelete,
		Path:   fmt.Sprintf("/users/%d", payload.UserID),
	})
	if !result.OK() {
		return result.AsError()
	}
	s.logger.Info("peer purge completed", zap.Int64("user_id", payload.UserID), zap.String("peer", string(payload.Peer)))
	return nil
}

func (s *UserPurgeService) onDrop(job jobs.Job, err error) {
	payload, _ := job.Payload.(purgePayload)
	s.logger.Error("peer purge abandoned",
		zap.String("job_id", job.ID),
		zap.Int64("user_id", payload.UserID),
		zap.String("peer", string(payload.Peer)),
		zap.Int("attempts", job.Attempt),
		zap.Error(err),
	)
}
