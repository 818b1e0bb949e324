package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
	"github.com/eliteGoblin/focusd/web_mon/internal/policy"
)

// Suppression applies image and video suppression to a tab.
type Suppression struct {
	suppressor domain.Suppressor
	recorder   Recorder
	logger     *zap.Logger
}

// NewSuppression creates a content-suppression controller.
func NewSuppression(s domain.Suppressor, recorder Recorder, logger *zap.Logger) *Suppression {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Suppression{
		suppressor: s,
		recorder:   recorder,
		logger:     logger,
	}
}

// Apply pushes both suppression flags to the tab.
// Tabs whose URL is not http(s) are left alone. Effector failures are
// logged and never returned.
func (s *Suppression) Apply(ctx context.Context, tabID int, url string, p domain.Policy) {
	if !policy.IsTrackable(url) {
		return
	}
	s.apply(ctx, "images", tabID, p.ImagesBlocked, s.suppressor.SetImages)
	s.apply(ctx, "videos", tabID, p.VideosBlocked, s.suppressor.SetVideos)
}

// ApplyImages pushes only the image flag. Returns the effector error.
func (s *Suppression) ApplyImages(ctx context.Context, tabID int, url string, blocked bool) error {
	if !policy.IsTrackable(url) {
		return nil
	}
	return s.apply(ctx, "images", tabID, blocked, s.suppressor.SetImages)
}

// ApplyVideos pushes only the video flag. Returns the effector error.
func (s *Suppression) ApplyVideos(ctx context.Context, tabID int, url string, blocked bool) error {
	if !policy.IsTrackable(url) {
		return nil
	}
	return s.apply(ctx, "videos", tabID, blocked, s.suppressor.SetVideos)
}

func (s *Suppression) apply(
	ctx context.Context,
	effector string,
	tabID int,
	blocked bool,
	set func(context.Context, int, bool) error,
) error {
	if err := set(ctx, tabID, blocked); err != nil {
		s.logger.Warn("suppression effector failed",
			zap.String("effector", effector),
			zap.Int("tab_id", tabID),
			zap.Bool("blocked", blocked),
			zap.Error(err))
		s.recorder.EffectorFailed(effector)
		return err
	}
	return nil
}
