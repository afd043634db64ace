package knowbase

import (
	"context"
	"errors"
	"math"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/vantageinsurance/knowbase/metadata"
)

const (
	// DefaultNResults is the result count when a request does not set one.
	DefaultNResults = 5

	// DefaultAdminNResults is the default for admin retrievals.
	DefaultAdminNResults = 10

	// MaxNResults caps the requested result count.
	MaxNResults = 20

	// overFetchFactor is how many candidates are pulled from the index
	// per requested result, so post-retrieval enforcement has room to
	// strip rows without starving the response.
	overFetchFactor = 10

	// chunkSeparator joins chunk texts in ContextText.
	chunkSeparator = "\n\n---\n\n"
)

// ownerKey is the metadata key carrying a chunk's tenant scope. A chunk
// without it is shared and visible to every tenant.
const ownerKey = "user_id"

// groupingKey is the metadata key GroupingScope matches against.
const groupingKey = "claim_id"

// Request describes one retrieval.
type Request struct {
	// Query is the free-text search input.
	Query string `json:"query"`

	// Filters are exact-match metadata conditions. The "user_id" entry
	// is mandatory: it is the caller's owner scope. It is enforced
	// after the index query, not inside it, so shared chunks survive.
	Filters map[string]string `json:"filters"`

	// NResults is the maximum number of chunks returned. Non-positive
	// means DefaultNResults; values above MaxNResults are clamped.
	NResults int `json:"n_results"`

	// AdminOverride skips the post-retrieval ownership check. The
	// engine does not verify privilege; the caller must. Every use is
	// audit-logged with the caller's identity.
	AdminOverride bool `json:"admin_override"`

	// AllowedSharedSources, when non-empty, keeps shared chunks only if
	// their source is in the list. Owned chunks are unaffected.
	AllowedSharedSources []string `json:"allowed_shared_sources"`

	// GroupingScope, when set, keeps owned chunks only if their
	// claim_id equals it. Shared chunks are then kept only if they also
	// pass AllowedSharedSources; with no list they are dropped.
	GroupingScope string `json:"grouping_scope"`
}

// Chunk is one retrieved unit of text.
type Chunk struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata metadata.Document `json:"metadata"`

	// Distance is 1 − cosine similarity, rounded to 4 decimals, in [0, 2].
	Distance float64 `json:"distance"`

	// Rank is 1-based among the returned chunks, without gaps.
	Rank int `json:"rank"`
}

// Result is the assembled retrieval response.
type Result struct {
	// ContextText is the chunks' texts joined by a separator, each
	// prefixed with a provenance line.
	ContextText string `json:"context_text"`

	Chunks []Chunk `json:"chunks"`
	Total  int     `json:"total"`

	// AppliedFilters echoes exactly what was sent to the index, nil
	// when the index was queried unfiltered.
	AppliedFilters metadata.Filter `json:"applied_filters"`
}

// Retrieve runs a privacy-scoped retrieval.
//
// Validation is fail-closed and runs before any index access: an empty
// query returns ErrEmptyQuery, a missing owner scope returns
// ErrScopeViolation. Enforcement is two-phase: the owner key is
// deliberately left out of the index filter so shared chunks are not
// lost, and every candidate is ownership-checked afterwards. Callers
// that can tolerate missing context should degrade to an empty context
// rather than failing their own operation.
func (e *Engine) Retrieve(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	res, err := e.retrieve(ctx, req)
	e.opts.metricsCollector.RecordRetrieve(req.NResults, time.Since(start), err)
	return res, err
}

func (e *Engine) retrieve(ctx context.Context, req Request) (*Result, error) {
	refs, err := e.refs()
	if err != nil {
		return nil, err
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	owner := strings.TrimSpace(req.Filters[ownerKey])
	if owner == "" {
		return nil, ErrScopeViolation
	}

	n := req.NResults
	if n <= 0 {
		n = DefaultNResults
	}
	n = min(n, MaxNResults)

	filter := e.buildFilter(ctx, req.Filters, req.GroupingScope)
	e.opts.logger.LogRetrieve(ctx, owner, req.AdminOverride, query, filter)

	queryVec, err := refs.provider.EmbedQuery(ctx, query)
	if err != nil {
		if err = translateError(err); errors.Is(err, ErrEmptyQuery) {
			return nil, err
		}
		return nil, &RetrievalError{Op: "embedding query", cause: err}
	}

	result := &Result{Chunks: []Chunk{}, AppliedFilters: filter}

	total := refs.idx.Count()
	if total == 0 {
		return result, nil
	}
	k := min(total, n*overFetchFactor)

	candidates, err := refs.idx.Search(ctx, queryVec, k, filter)
	if err != nil {
		return nil, &RetrievalError{Op: "index search", cause: err}
	}

	for _, cand := range candidates {
		dist := cosineDistance(cand.Distance)
		if e.opts.minSimilarity > 0 && 1-dist < e.opts.minSimilarity {
			continue
		}

		chunkOwner := cand.Metadata.Text(ownerKey)
		if !req.AdminOverride && chunkOwner != "" && chunkOwner != owner {
			// The index filter should never surface this row; the
			// second check catches it anyway.
			e.opts.logger.LogStrip(ctx, cand.ID, chunkOwner, owner)
			e.opts.metricsCollector.RecordStrip()
			continue
		}

		shared := chunkOwner == ""
		if len(req.AllowedSharedSources) > 0 && shared &&
			!slices.Contains(req.AllowedSharedSources, cand.Metadata.Text("source")) {
			continue
		}
		if req.GroupingScope != "" {
			if shared {
				if len(req.AllowedSharedSources) == 0 {
					continue
				}
			} else if cand.Metadata.Text(groupingKey) != req.GroupingScope {
				continue
			}
		}

		result.Chunks = append(result.Chunks, Chunk{
			ID:       cand.ID,
			Text:     cand.Text,
			Metadata: cand.Metadata,
			Distance: dist,
			Rank:     len(result.Chunks) + 1,
		})
		if len(result.Chunks) == n {
			break
		}
	}

	result.Total = len(result.Chunks)
	result.ContextText = buildContextText(result.Chunks)

	e.opts.logger.DebugContext(ctx, "retrieve completed",
		"user", owner, "results", result.Total)
	return result, nil
}

// buildFilter assembles the index filter from caller conditions. The
// owner key never reaches the index: ownership is enforced on results
// so shared chunks stay retrievable. Unrecognized keys are dropped.
func (e *Engine) buildFilter(ctx context.Context, filters map[string]string, groupingScope string) metadata.Filter {
	keys := make([]string, 0, len(filters))
	for key := range filters {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	conditions := make([]metadata.Filter, 0, len(keys))
	for _, key := range keys {
		value := filters[key]
		if value == "" {
			continue
		}
		if key == ownerKey {
			continue
		}
		if key == groupingKey && groupingScope != "" {
			// GroupingScope replaces the claim filter with its own
			// post-retrieval rule.
			continue
		}
		if !e.schema.Allows(key) {
			e.opts.logger.DebugContext(ctx, "unrecognized filter key dropped", "key", key)
			continue
		}
		conditions = append(conditions, metadata.Eq(key, value))
	}
	return metadata.AndOf(conditions...)
}

// cosineDistance converts the index's raw score (negated dot product
// for the cosine metric) to 1 − similarity, clamped at zero and rounded
// to 4 decimals.
func cosineDistance(raw float32) float64 {
	similarity := float64(-raw)
	return math.Round(math.Max(0, 1-similarity)*10000) / 10000
}

func buildContextText(chunks []Chunk) string {
	if len(chunks) == 0 {
		return ""
	}
	parts := make([]string, len(chunks))
	for i, chunk := range chunks {
		source := chunk.Metadata.Text("source")
		if source == "" {
			source = "unknown"
		}
		section := chunk.Metadata.Text("section_type")
		if section == "" {
			section = "section"
		}
		parts[i] = "[Source: " + source + " | Section: " + section + "]\n" + chunk.Text
	}
	return strings.Join(parts, chunkSeparator)
}

// UserRetrieveOptions tune RetrieveForUser.
type UserRetrieveOptions struct {
	// NResults defaults to DefaultNResults.
	NResults int

	// PolicyNumber and ClaimID narrow the index filter when set.
	PolicyNumber string
	ClaimID      string

	AllowedSharedSources []string
	GroupingScope        string
}

// RetrieveForUser retrieves on behalf of a tenant. The owner scope is
// taken from userID; the override is always off.
func (e *Engine) RetrieveForUser(ctx context.Context, query, userID string, optFns ...func(o *UserRetrieveOptions)) (*Result, error) {
	opts := UserRetrieveOptions{NResults: DefaultNResults}
	for _, fn := range optFns {
		fn(&opts)
	}

	filters := map[string]string{ownerKey: userID}
	if opts.PolicyNumber != "" {
		filters["policy_number"] = opts.PolicyNumber
	}
	if opts.ClaimID != "" {
		filters[groupingKey] = opts.ClaimID
	}

	return e.Retrieve(ctx, Request{
		Query:                query,
		Filters:              filters,
		NResults:             opts.NResults,
		AllowedSharedSources: opts.AllowedSharedSources,
		GroupingScope:        opts.GroupingScope,
	})
}

// AdminRetrieveOptions tune RetrieveForAdmin.
type AdminRetrieveOptions struct {
	// NResults defaults to DefaultAdminNResults.
	NResults int

	// TargetUserID scopes the retrieval to one tenant's chunks. The
	// enforcement override is then turned off: the admin sees exactly
	// what that tenant would see.
	TargetUserID string

	// PolicyNumber and ClaimID narrow the index filter when set,
	// with or without a target tenant.
	PolicyNumber string
	ClaimID      string
}

// RetrieveForAdmin retrieves across owner scopes. Without a target the
// override is on and results may span tenants; the admin's own identity
// is still audit-logged. The engine does not verify adminUserID's
// privilege.
func (e *Engine) RetrieveForAdmin(ctx context.Context, query, adminUserID string, optFns ...func(o *AdminRetrieveOptions)) (*Result, error) {
	opts := AdminRetrieveOptions{NResults: DefaultAdminNResults}
	for _, fn := range optFns {
		fn(&opts)
	}

	req := Request{Query: query, NResults: opts.NResults}
	if opts.TargetUserID != "" {
		req.Filters = map[string]string{ownerKey: opts.TargetUserID}
		req.AdminOverride = false
	} else {
		req.Filters = map[string]string{ownerKey: adminUserID}
		req.AdminOverride = true
	}
	if opts.PolicyNumber != "" {
		req.Filters["policy_number"] = opts.PolicyNumber
	}
	if opts.ClaimID != "" {
		req.Filters[groupingKey] = opts.ClaimID
	}

	return e.Retrieve(ctx, req)
}
