package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"
)

const (
	// maxProfiles caps the stored profile count; beyond it the least
	// valuable profile is evicted.
	maxProfiles = 50

	evictionUsageWeight   = 0.6
	evictionRecencyWeight = 0.4

	// recencyWindow is the horizon over which "recently used" decays to
	// zero for eviction scoring.
	recencyWindow = 180 * 24 * time.Hour
)

// Service coordinates profile lookup, learning and eviction over a Store.
// The mutex serializes every read-modify-write so concurrent imports cannot
// lose usage-counter updates.
type Service struct {
	mu     sync.Mutex
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewService wires a profile service. logger may be nil.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// Find matches a file against the stored profiles and, on a hit, records the
// usage. Returns nil when nothing matches.
func (s *Service) Find(ctx context.Context, fingerprint, sampleHash string, headers []string) (*MatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	m := Match(all, fingerprint, sampleHash, headers)
	if m == nil {
		return nil, nil
	}
	m.Profile.UsageCount++
	m.Profile.LastUsedAt = s.now().UTC()
	if err := s.store.Put(ctx, m.Profile); err != nil {
		return nil, fmt.Errorf("touch profile %s: %w", m.Profile.ID, err)
	}
	s.logger.Debug("profile matched",
		slog.String("profile_id", m.Profile.ID),
		slog.String("method", m.Method),
		slog.Float64("confidence", m.Confidence))
	return m, nil
}

// Learn stores a confirmed profile, evicting the lowest-scored profile when
// the cap is exceeded.
func (s *Service) Learn(ctx context.Context, p *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Put(ctx, p); err != nil {
		return fmt.Errorf("store profile: %w", err)
	}
	all, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("list profiles: %w", err)
	}
	for len(all) > maxProfiles {
		victim := s.lowestScored(all)
		if victim == nil || victim.ID == p.ID {
			break
		}
		if err := s.store.Delete(ctx, victim.ID); err != nil {
			return fmt.Errorf("evict profile %s: %w", victim.ID, err)
		}
		s.logger.Info("profile evicted",
			slog.String("profile_id", victim.ID),
			slog.String("bank", victim.DisplayName()))
		all = removeProfile(all, victim.ID)
	}
	return nil
}

// lowestScored ranks profiles by usage frequency and recency and returns the
// weakest one.
func (s *Service) lowestScored(all []*Profile) *Profile {
	if len(all) == 0 {
		return nil
	}
	maxUsage := 1
	for _, p := range all {
		if p.UsageCount > maxUsage {
			maxUsage = p.UsageCount
		}
	}
	now := s.now().UTC()
	var victim *Profile
	lowest := 0.0
	for _, p := range all {
		usage := float64(p.UsageCount) / float64(maxUsage)
		age := now.Sub(p.LastUsedAt)
		recency := 1 - float64(age)/float64(recencyWindow)
		if recency < 0 {
			recency = 0
		}
		score := usage*evictionUsageWeight + recency*evictionRecencyWeight
		if victim == nil || score < lowest {
			victim = p
			lowest = score
		}
	}
	return victim
}

func removeProfile(all []*Profile, id string) []*Profile {
	out := all[:0]
	for _, p := range all {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}

// Export writes every stored profile as a JSON array, newest first.
func (s *Service) Export(ctx context.Context, w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("list profiles: %w", err)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].LastUsedAt.After(all[j].LastUsedAt) })
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(all); err != nil {
		return fmt.Errorf("encode profiles: %w", err)
	}
	return nil
}

// Import reads a JSON export and merges it into the store. Existing IDs are
// overwritten; the cap applies afterwards.
func (s *Service) Import(ctx context.Context, r io.Reader) (int, error) {
	var incoming []*Profile
	if err := json.NewDecoder(r).Decode(&incoming); err != nil {
		return 0, fmt.Errorf("decode profiles: %w", err)
	}
	for _, p := range incoming {
		if p.ID == "" || p.Fingerprint == "" {
			continue
		}
		if err := s.Learn(ctx, p); err != nil {
			return 0, err
		}
	}
	return len(incoming), nil
}
