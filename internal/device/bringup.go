package device

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/Masterminds/semver"
	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/rs/xid"

	"github.com/bornholm/uitester/internal/slogx"
)

// Builder creates initialized handles.
type Builder interface {
	Build(ctx context.Context, deviceID string) (*Handle, error)
}

// BringUp runs the connectivity check, the agent start and the version
// verification, in that order.
type BringUp struct {
	bridge     Bridge
	constraint *semver.Constraints
	opts       *BringUpOptions
	logger     *slog.Logger
}

// Build implements Builder.
func (b *BringUp) Build(ctx context.Context, deviceID string) (*Handle, error) {
	if deviceID == "" {
		return nil, errors.WithStack(ErrEmptyDeviceID)
	}

	ctx = slogx.WithAttrs(ctx, slog.String("device_id", deviceID))

	b.logger.InfoContext(ctx, "initializing device")

	if err := b.checkConnectivity(ctx, deviceID); err != nil {
		bringUpsTotal.WithLabelValues(string(StepConnectivity)).Inc()
		return nil, &InitError{DeviceID: deviceID, Step: StepConnectivity, Attempts: 1, Cause: err}
	}

	attempts, err := retry(ctx, b.opts.InitAttempts, b.opts.InitBackoff, func(attempt int) error {
		return b.startAgent(ctx, deviceID, attempt)
	})
	if err != nil {
		bringUpsTotal.WithLabelValues(string(StepAgentStart)).Inc()
		return nil, &InitError{DeviceID: deviceID, Step: StepAgentStart, Attempts: attempts, Cause: err}
	}

	var version *semver.Version

	attempts, err = retry(ctx, b.opts.VersionAttempts, b.opts.VersionBackoff, func(attempt int) error {
		v, err := b.verifyVersion(ctx, deviceID, attempt)
		if err != nil {
			return errors.WithStack(err)
		}

		version = v

		return nil
	})
	if err != nil {
		bringUpsTotal.WithLabelValues(string(StepVersionCheck)).Inc()
		return nil, &InitError{DeviceID: deviceID, Step: StepVersionCheck, Attempts: attempts, Cause: err}
	}

	handle := &Handle{
		DeviceID:      deviceID,
		SessionID:     xid.New().String(),
		AgentVersion:  version.String(),
		InitializedAt: time.Now(),
		bridge:        b.bridge,
	}

	handle.initialized.Store(true)

	bringUpsTotal.WithLabelValues("success").Inc()

	b.logger.InfoContext(ctx, "device initialized", slog.String("session_id", handle.SessionID), slog.String("agent_version", handle.AgentVersion))

	return handle, nil
}

func (b *BringUp) checkConnectivity(ctx context.Context, deviceID string) error {
	state, err := b.bridge.State(ctx, deviceID)
	if err != nil {
		return errors.Wrap(ErrDeviceOffline, err.Error())
	}

	if state != StateDevice {
		return errors.Wrapf(ErrDeviceOffline, "bridge reports state '%s'", state)
	}

	return nil
}

func (b *BringUp) startAgent(ctx context.Context, deviceID string, attempt int) error {
	b.logger.DebugContext(ctx, "starting automation agent", slog.Int("attempt", attempt))

	result, err := b.bridge.InitAgent(ctx, deviceID)
	if err != nil {
		b.logger.WarnContext(ctx, "agent start attempt failed", slog.Int("attempt", attempt), slogx.Error(err))
		return errors.WithStack(err)
	}

	if result.ReturnCode != 0 {
		err := errors.Errorf("agent start exited with code %d: %s", result.ReturnCode, lastLine(result.Combined()))
		b.logger.WarnContext(ctx, "agent start attempt failed", slog.Int("attempt", attempt), slogx.Error(err))
		return err
	}

	if marker := b.opts.InitSuccessMarker; marker != "" && !strings.Contains(result.Combined(), marker) {
		err := errors.Errorf("agent start output does not contain '%s'", marker)
		b.logger.WarnContext(ctx, "agent start attempt failed", slog.Int("attempt", attempt), slogx.Error(err))
		return err
	}

	return nil
}

func (b *BringUp) verifyVersion(ctx context.Context, deviceID string, attempt int) (*semver.Version, error) {
	raw, err := b.bridge.AgentVersion(ctx, deviceID)
	if err != nil {
		b.logger.WarnContext(ctx, "agent version query failed", slog.Int("attempt", attempt), slogx.Error(err))
		return nil, errors.WithStack(err)
	}

	version, err := ParseVersion(raw)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if !b.constraint.Check(version) {
		return nil, errors.Wrapf(ErrVersionMismatch, "version '%s' does not satisfy '%s'", version, b.opts.VersionConstraint)
	}

	return version, nil
}

var versionPattern = regexp.MustCompile(`v?\d+\.\d+(\.\d+)?(-[0-9A-Za-z.-]+)?`)

// ParseVersion extracts a semantic version from an agent version output.
func ParseVersion(raw string) (*semver.Version, error) {
	trimmed := strings.TrimSpace(raw)

	if version, err := semver.NewVersion(trimmed); err == nil {
		return version, nil
	}

	match := versionPattern.FindString(trimmed)
	if match == "" {
		return nil, errors.Errorf("could not find a version in '%s'", trimmed)
	}

	version, err := semver.NewVersion(match)
	if err != nil {
		return nil, errors.Wrapf(err, "could not parse version '%s'", match)
	}

	return version, nil
}

// retry calls fn until it succeeds, up to attempts times with a constant
// backoff. It returns the number of attempts made.
func retry(ctx context.Context, attempts int, interval time.Duration, fn func(attempt int) error) (int, error) {
	if attempts < 1 {
		attempts = 1
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), uint64(attempts-1)),
		ctx,
	)

	count := 0

	err := backoff.Retry(func() error {
		count++
		return fn(count)
	}, policy)
	if err != nil {
		return count, errors.WithStack(err)
	}

	return count, nil
}

func lastLine(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

func NewBringUp(bridge Bridge, funcs ...BringUpOptionFunc) (*BringUp, error) {
	opts := NewBringUpOptions(funcs...)

	constraint, err := semver.NewConstraint(opts.VersionConstraint)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid version constraint '%s'", opts.VersionConstraint)
	}

	return &BringUp{
		bridge:     bridge,
		constraint: constraint,
		opts:       opts,
		logger:     opts.Logger.With("component", "device-bringup"),
	}, nil
}

var _ Builder = &BringUp{}
