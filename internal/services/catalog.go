package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/hintquest/apiserver/types"
	"gopkg.in/yaml.v3"
)

const catalogContentType = "application/yaml"

// ObjectStore is the object storage capability the catalog needs.
// *storage.Storage satisfies it.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// CatalogDocument is the declarative file format for challenge definitions.
type CatalogDocument struct {
	Challenges []ChallengeDefinition `yaml:"challenges"`
}

// ChallengeDefinition describes one challenge in a catalog document.
type ChallengeDefinition struct {
	ID          string                `yaml:"id,omitempty"`
	Name        string                `yaml:"name"`
	Description string                `yaml:"description"`
	Author      string                `yaml:"author,omitempty"`
	Owner       string                `yaml:"owner"`
	Answer      string                `yaml:"answer"`
	Difficulty  int                   `yaml:"difficulty"`
	Hints       []string              `yaml:"hints,omitempty"`
	Reward      *types.RewardDocument `yaml:"reward,omitempty"`
	State       types.ChallengeState  `yaml:"state,omitempty"`
}

// Catalog imports and exports challenge definitions, either through a
// reader/writer or the configured object storage key.
type Catalog struct {
	repo    ChallengeRepository
	index   *ChallengeIndex
	objects ObjectStore
	key     string
	logger  *slog.Logger
}

func NewCatalog(repo ChallengeRepository, index *ChallengeIndex, objects ObjectStore, key string, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{repo: repo, index: index, objects: objects, key: key, logger: logger}
}

// Import upserts every definition in the YAML document read from r. The
// whole document is validated first and then written in one transaction, so
// a failed import leaves the store unchanged.
func (c *Catalog) Import(ctx context.Context, r io.Reader) (int, error) {
	var doc CatalogDocument
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil
		}
		return 0, invalid("catalog", fmt.Sprintf("unreadable document: %v", err))
	}

	challenges := make([]types.Challenge, 0, len(doc.Challenges))
	seen := make(map[string]struct{}, len(doc.Challenges))
	for i, def := range doc.Challenges {
		challenge, err := def.toChallenge()
		if err != nil {
			return 0, fmt.Errorf("challenge %d: %w", i+1, err)
		}
		if _, dup := seen[challenge.ID]; dup {
			return 0, invalid("id", fmt.Sprintf("duplicate id %q", challenge.ID))
		}
		seen[challenge.ID] = struct{}{}
		challenges = append(challenges, challenge)
	}

	if _, err := c.repo.UpsertAll(ctx, challenges); err != nil {
		return 0, translate(err)
	}
	c.index.refresh(ctx)
	c.logger.Info("catalog imported", "challenges", len(challenges))
	return len(challenges), nil
}

// Export writes every stored challenge as a YAML document to w.
func (c *Catalog) Export(ctx context.Context, w io.Writer) (int, error) {
	doc := CatalogDocument{Challenges: make([]ChallengeDefinition, 0)}
	filter := types.ChallengeFilter{Limit: indexPageSize}
	for {
		page, total, err := c.repo.List(ctx, filter)
		if err != nil {
			return 0, translate(err)
		}
		for _, challenge := range page {
			doc.Challenges = append(doc.Challenges, definitionFor(challenge))
		}
		filter.Offset += len(page)
		if len(page) == 0 || filter.Offset >= total {
			break
		}
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return 0, err
	}
	if err := enc.Close(); err != nil {
		return 0, err
	}
	return len(doc.Challenges), nil
}

// Load imports the catalog object from storage.
func (c *Catalog) Load(ctx context.Context) (int, error) {
	if c.objects == nil {
		return 0, fmt.Errorf("%w: no catalog storage configured", ErrExternalService)
	}
	body, err := c.objects.Get(ctx, c.key)
	if err != nil {
		c.logger.Error("catalog download failed", "key", c.key, "error", err)
		return 0, ErrExternalService
	}
	defer body.Close()
	return c.Import(ctx, body)
}

// Save exports the catalog and uploads it to storage.
func (c *Catalog) Save(ctx context.Context) (int, error) {
	if c.objects == nil {
		return 0, fmt.Errorf("%w: no catalog storage configured", ErrExternalService)
	}
	var buf bytes.Buffer
	count, err := c.Export(ctx, &buf)
	if err != nil {
		return 0, err
	}
	if err := c.objects.Put(ctx, c.key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), catalogContentType); err != nil {
		c.logger.Error("catalog upload failed", "key", c.key, "error", err)
		return 0, ErrExternalService
	}
	c.logger.Info("catalog exported", "key", c.key, "challenges", count)
	return count, nil
}

func (d ChallengeDefinition) toChallenge() (types.Challenge, error) {
	challenge := types.Challenge{
		ID:              strings.TrimSpace(d.ID),
		Name:            strings.TrimSpace(d.Name),
		Description:     strings.TrimSpace(d.Description),
		AuthorName:      strings.TrimSpace(d.Author),
		OwnerExternalID: strings.TrimSpace(d.Owner),
		Answer:          strings.TrimSpace(d.Answer),
		Difficulty:      d.Difficulty,
		Hints:           cleanHints(d.Hints),
		State:           d.State,
	}
	if challenge.OwnerExternalID == "" {
		return types.Challenge{}, invalid("owner", "is required")
	}
	if challenge.State == "" {
		challenge.State = types.StatePending
	}
	if !challenge.State.Valid() {
		return types.Challenge{}, invalid("state", fmt.Sprintf("unknown state %q", d.State))
	}
	if d.Reward != nil {
		reward, err := d.Reward.Decode()
		if err != nil {
			return types.Challenge{}, ErrUnknownRewardType
		}
		challenge.Reward = reward
	}
	if err := validateChallenge(challenge); err != nil {
		return types.Challenge{}, err
	}
	if challenge.State == types.StateApproved && (challenge.Reward == nil || !challenge.Reward.Configured()) {
		return types.Challenge{}, invalid("reward", "an approved challenge needs a configured reward")
	}
	if challenge.ID == "" {
		// Stable across re-imports of the same definition.
		challenge.ID = nameSlug(challenge.Name) + "-" + ownerHash(challenge.OwnerExternalID)
	}
	return challenge, nil
}

func definitionFor(c types.Challenge) ChallengeDefinition {
	return ChallengeDefinition{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		Author:      c.AuthorName,
		Owner:       c.OwnerExternalID,
		Answer:      c.Answer,
		Difficulty:  c.Difficulty,
		Hints:       c.Hints,
		Reward:      types.DocumentFor(c.Reward),
		State:       c.State,
	}
}
