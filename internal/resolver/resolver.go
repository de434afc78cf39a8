// internal/resolver/resolver.go
package resolver

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/reelforge/reelforge/internal/errors"
	"github.com/reelforge/reelforge/internal/gemini"
	"github.com/reelforge/reelforge/internal/models"
)

// StatusFunc receives human-readable progress messages, including the
// once-per-second countdown while waiting out a rate limit.
type StatusFunc func(message string)

// AttemptFunc issues exactly one request against a candidate model. The
// caller captures its own result; the resolver only cares about the error
// classification.
type AttemptFunc func(ctx context.Context, candidate models.ResolvedModel) error

const (
	maxNetworkRetries = 3
	networkBackoff    = 2 * time.Second
	rateLimitBuffer   = 2 * time.Second
)

// Resolver tries candidate models in order under a uniform retry policy:
// rate limits wait and retry the same candidate, transient network errors
// retry the same candidate with exponential backoff until the third
// straight failure, permission errors abort immediately, and everything
// else advances to the next candidate.
type Resolver struct {
	client      *gemini.Client
	imageLock   *models.ModelLock
	defaultWait time.Duration

	// injectable for tests
	sleep func(time.Duration)
}

// New creates a resolver. imageLock holds the session-wide locked image
// model; defaultWait applies when a rate-limit response has no retry hint.
func New(client *gemini.Client, imageLock *models.ModelLock, defaultWait time.Duration) *Resolver {
	if defaultWait <= 0 {
		defaultWait = 10 * time.Second
	}
	return &Resolver{
		client:      client,
		imageLock:   imageLock,
		defaultWait: defaultWait,
		sleep:       time.Sleep,
	}
}

// Try walks the candidate list in order until one attempt succeeds. On
// success for the image capability the winning candidate becomes the locked
// model. When a locked model exists, discovery is skipped and only the
// locked candidate is tried; if it fails, the lock is cleared and the call
// fails fast so the next call discovers afresh.
func (r *Resolver) Try(ctx context.Context, capability models.Capability, candidates []models.ResolvedModel, attempt AttemptFunc, onStatus StatusFunc) (*models.ResolvedModel, error) {
	if capability == models.CapabilityImage && r.imageLock != nil {
		if locked := r.imageLock.Get(); locked != nil {
			if onStatus != nil {
				onStatus(fmt.Sprintf("using locked model %s", locked.ID))
			}
			err := r.tryCandidate(ctx, *locked, attempt, onStatus)
			if err == nil {
				return locked, nil
			}
			if apperrors.IsPermissionError(err) {
				return nil, err
			}
			r.imageLock.Clear()
			return nil, apperrors.NewExhaustedError(
				fmt.Sprintf("locked model %s stopped working: %v", locked.ID, err), err)
		}
	}

	if len(candidates) == 0 {
		return nil, apperrors.NewValidationError("no candidate models supplied", nil)
	}

	var recorded []string
	for _, candidate := range candidates {
		if onStatus != nil {
			onStatus(fmt.Sprintf("trying %s...", candidate.ID))
		}

		err := r.tryCandidate(ctx, candidate, attempt, onStatus)
		if err == nil {
			if capability == models.CapabilityImage && r.imageLock != nil {
				r.imageLock.Set(candidate)
			}
			c := candidate
			return &c, nil
		}
		if apperrors.IsPermissionError(err) {
			// caller-fixable configuration problem, propagate verbatim
			return nil, err
		}

		recorded = append(recorded, fmt.Sprintf("[%s] %v", candidate.ID, err))
	}

	return nil, apperrors.NewExhaustedError(
		fmt.Sprintf("all %d candidates failed:\n%s", len(candidates), strings.Join(recorded, "\n")), nil)
}

// tryCandidate drives a bounded retry loop for one candidate. Rate limits
// never abandon the candidate; the third straight network failure does;
// all other errors abandon it immediately.
func (r *Resolver) tryCandidate(ctx context.Context, candidate models.ResolvedModel, attempt AttemptFunc, onStatus StatusFunc) error {
	networkRetries := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := attempt(ctx, candidate)
		if err == nil {
			return nil
		}

		switch {
		case apperrors.IsRateLimited(err):
			wait := ParseRetryWait(err.Error(), r.defaultWait)
			r.countdown(wait, onStatus)

		case apperrors.IsNetworkError(err):
			networkRetries++
			if networkRetries >= maxNetworkRetries {
				// third straight failure abandons the candidate
				return err
			}
			wait := networkBackoff << (networkRetries - 1) // 2s then 4s
			if onStatus != nil {
				onStatus(fmt.Sprintf("network problem, retry %d/%d in %s...", networkRetries, maxNetworkRetries-1, wait))
			}
			r.sleep(wait)

		default:
			return err
		}
	}
}

// countdown sleeps out a rate-limit wait, surfacing one tick per second.
func (r *Resolver) countdown(wait time.Duration, onStatus StatusFunc) {
	totalSeconds := int(math.Ceil(wait.Seconds()))
	for s := totalSeconds; s > 0; s-- {
		if onStatus != nil {
			onStatus(fmt.Sprintf("quota hit, retrying in %ds...", s))
		}
		r.sleep(time.Second)
	}
}

var retryHintPattern = regexp.MustCompile(`(?i)retry in ([0-9.]+)\s*(ms|s)`)

// ParseRetryWait extracts the wait the upstream service asked for out of a
// rate-limit message and adds a safety buffer. Without a hint the supplied
// default applies unbuffered.
func ParseRetryWait(message string, defaultWait time.Duration) time.Duration {
	match := retryHintPattern.FindStringSubmatch(message)
	if match == nil {
		return defaultWait
	}

	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return defaultWait
	}

	var hinted time.Duration
	if strings.EqualFold(match[2], "ms") {
		hinted = time.Duration(math.Ceil(value)) * time.Millisecond
	} else {
		hinted = time.Duration(math.Ceil(value*1000)) * time.Millisecond
	}
	return hinted + rateLimitBuffer
}

// imagePreferredPatterns ranks discovered model ids for the image
// capability; matches are tried in this order.
var imagePreferredPatterns = []string{
	"nano-banana-pro-preview",
	"gemini-3-pro-image-preview",
	"gemini-3-pro-preview",
	"veo-3",
	"gemini-2.0-flash-exp-image-generation",
	"imagen-4",
}

// imageFallbackIDs is the hardcoded candidate list used when discovery
// produces nothing usable. Callers always get at least these.
var imageFallbackIDs = []string{
	"gemini-2.0-flash-exp-image-generation",
	"nano-banana-pro-preview",
	"gemini-2.5-flash-image-preview",
	"gemini-2.5-flash-image",
	"gemini-3-pro-image-preview",
	"gemini-2.0-flash-exp",
	"gemini-1.5-pro",
}

// DiscoverImageCandidates lists the models available to the key, keeps the
// ones that support generateContent, and ranks them by the preferred
// patterns. Discovery failure is not fatal: the fallback list stands in.
func (r *Resolver) DiscoverImageCandidates(ctx context.Context, apiKey string, onStatus StatusFunc) []models.ResolvedModel {
	if onStatus != nil {
		onStatus("discovering available image models...")
	}

	var validIDs []string
	infos, err := r.client.ListModels(ctx, apiKey)
	if err == nil {
		for _, info := range infos {
			if !supportsGenerateContent(info) {
				continue
			}
			validIDs = append(validIDs, strings.TrimPrefix(info.Name, "models/"))
		}
	}

	var ranked []string
	for _, pattern := range imagePreferredPatterns {
		for _, id := range validIDs {
			if strings.Contains(id, pattern) {
				ranked = append(ranked, id)
			}
		}
	}
	if len(ranked) == 0 {
		ranked = imageFallbackIDs
	}

	seen := make(map[string]bool, len(ranked))
	candidates := make([]models.ResolvedModel, 0, len(ranked))
	for _, id := range ranked {
		if seen[id] {
			continue
		}
		seen[id] = true
		candidates = append(candidates, models.ResolvedModel{ID: id, APIVersion: "v1beta"})
	}
	return candidates
}

func supportsGenerateContent(info gemini.ModelInfo) bool {
	for _, method := range info.SupportedGenerationMethods {
		if method == "generateContent" {
			return true
		}
	}
	return false
}

// HasLockedImage reports whether an image model is currently locked, so
// callers can skip discovery entirely.
func (r *Resolver) HasLockedImage() bool {
	return r.imageLock != nil && r.imageLock.Get() != nil
}

// SetSleeper overrides the sleep function. Test hook.
func (r *Resolver) SetSleeper(sleep func(time.Duration)) {
	if sleep != nil {
		r.sleep = sleep
	}
}
