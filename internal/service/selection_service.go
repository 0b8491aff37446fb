package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-course-api/internal/dto"
	"github.com/noah-isme/campus-course-api/internal/models"
	appErrors "github.com/noah-isme/campus-course-api/pkg/errors"
)

const selectionWindowCacheKey = "selection:window"

type settingsStore interface {
	GetSettings(ctx context.Context, keys []string) ([]models.Setting, error)
	UpsertSettings(ctx context.Context, settings []models.Setting) error
}

type selectionCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// SelectionServiceConfig wires SelectionService.
type SelectionServiceConfig struct {
	Settings settingsStore
	Cache    selectionCache
	// Begin and End are the RFC3339 fallback bounds used when the directory
	// holds no window.
	Begin string
	End   string
	// CacheTTL bounds how long another campus keeps serving a window after
	// an update, since Update only clears this node's cache. Zero disables
	// caching.
	CacheTTL  time.Duration
	Validator *validator.Validate
	Logger    *zap.Logger
}

// SelectionService owns the global course selection window.
type SelectionService struct {
	settings  settingsStore
	cache     selectionCache
	fallback  models.SelectionWindow
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewSelectionService constructs SelectionService. Malformed fallback bounds
// are logged and ignored.
func NewSelectionService(cfg SelectionServiceConfig) *SelectionService {
	if cfg.Validator == nil {
		cfg.Validator = validator.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	fallback, err := parseWindow(cfg.Begin, cfg.End)
	if err != nil {
		cfg.Logger.Warn("ignoring selection window from environment", zap.Error(err))
		fallback = models.SelectionWindow{}
	}
	return &SelectionService{
		settings:  cfg.Settings,
		cache:     cfg.Cache,
		fallback:  fallback,
		cacheTTL:  cfg.CacheTTL,
		validator: cfg.Validator,
		logger:    cfg.Logger,
		now:       time.Now,
	}
}

// Get reports the current window and whether it is open now.
func (s *SelectionService) Get(ctx context.Context) (*dto.SelectionWindowResponse, error) {
	window, err := s.window(ctx)
	if err != nil {
		return nil, err
	}
	return toWindowResponse(window, s.now()), nil
}

// IsOpen reports whether now falls inside the window. An unset window is closed.
func (s *SelectionService) IsOpen(ctx context.Context, now time.Time) (bool, error) {
	window, err := s.window(ctx)
	if err != nil {
		return false, err
	}
	return window.Contains(now), nil
}

// Update stores a new window in the directory and drops the cached copy.
func (s *SelectionService) Update(ctx context.Context, actor *models.CurrentUser, req dto.SelectionWindowRequest) (*dto.SelectionWindowResponse, error) {
	if !actor.IsAdmin() {
		return nil, appErrors.ErrNoPermission
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid selection window")
	}

	now := s.now().UTC()
	updatedBy := actor.UserID
	window := models.SelectionWindow{Begin: req.Begin.UTC(), End: req.End.UTC()}
	settings := []models.Setting{
		{Key: models.SettingSelectionBegin, Value: window.Begin.Format(time.RFC3339), UpdatedBy: &updatedBy, UpdatedAt: now},
		{Key: models.SettingSelectionEnd, Value: window.End.Format(time.RFC3339), UpdatedBy: &updatedBy, UpdatedAt: now},
	}
	if err := s.settings.UpsertSettings(ctx, settings); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store selection window")
	}
	// Peers pick the new window up once their cached copy expires.
	if s.cache != nil {
		if err := s.cache.Delete(ctx, selectionWindowCacheKey); err != nil {
			s.logger.Warn("failed to invalidate selection window cache", zap.Error(err))
		}
	}

	s.logger.Info("selection window updated",
		zap.Int64("admin_id", actor.UserID),
		zap.Time("begin", window.Begin),
		zap.Time("end", window.End),
	)
	return toWindowResponse(window, s.now()), nil
}

func (s *SelectionService) window(ctx context.Context) (models.SelectionWindow, error) {
	var window models.SelectionWindow
	if s.cache != nil {
		err := s.cache.Get(ctx, selectionWindowCacheKey, &window)
		if err == nil {
			return window, nil
		}
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("selection window cache read failed", zap.Error(err))
		}
	}

	rows, err := s.settings.GetSettings(ctx, []string{models.SettingSelectionBegin, models.SettingSelectionEnd})
	if err != nil {
		return window, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load selection window")
	}
	var begin, end string
	for _, row := range rows {
		switch row.Key {
		case models.SettingSelectionBegin:
			begin = row.Value
		case models.SettingSelectionEnd:
			end = row.Value
		}
	}

	window = s.fallback
	if begin != "" || end != "" {
		stored, err := parseWindow(begin, end)
		if err != nil {
			s.logger.Warn("stored selection window is malformed", zap.Error(err))
		} else {
			window = stored
		}
	}

	if s.cache != nil && s.cacheTTL > 0 {
		if err := s.cache.Set(ctx, selectionWindowCacheKey, window, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache selection window", zap.Error(err))
		}
	}
	return window, nil
}

func parseWindow(begin, end string) (models.SelectionWindow, error) {
	var window models.SelectionWindow
	if begin == "" && end == "" {
		return window, nil
	}
	b, err := time.Parse(time.RFC3339, begin)
	if err != nil {
		return window, fmt.Errorf("parse selection begin %q: %w", begin, err)
	}
	e, err := time.Parse(time.RFC3339, end)
	if err != nil {
		return window, fmt.Errorf("parse selection end %q: %w", end, err)
	}
	if !e.After(b) {
		return window, fmt.Errorf("selection end %s is not after begin %s", end, begin)
	}
	return models.SelectionWindow{Begin: b.UTC(), End: e.UTC()}, nil
}

func toWindowResponse(window models.SelectionWindow, now time.Time) *dto.SelectionWindowResponse {
	resp := &dto.SelectionWindowResponse{Open: window.Contains(now)}
	if window.Configured() {
		begin, end := window.Begin, window.End
		resp.Begin = &begin
		resp.End = &end
	}
	return resp
}
