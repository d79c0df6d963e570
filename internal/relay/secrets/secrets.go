// Package secrets periodically refreshes credential material from one of
// three backends (HashiCorp Vault, AWS Secrets Manager, Google Secret
// Manager) onto a mqueue queue, so rotation never blocks a handler's own
// dispatch and always happens on a single, well-known goroutine.
package secrets

import (
	"context"
	"fmt"
	"sync"
	"time"

	awssecrets "github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	gcpsecrets "cloud.google.com/go/secretmanager/apiv1"
	gcpsecretspb "cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	vaultapi "github.com/hashicorp/vault/api"
	"github.com/rs/zerolog/log"

	"go.relayqueue.dev/internal/mqueue"
)

// Backend abstracts the three supported secret stores.
type Backend interface {
	Fetch(ctx context.Context, name string) (string, error)
}

// VaultBackend reads a single key from a KV v2 secret.
type VaultBackend struct {
	Client *vaultapi.Client
	Mount  string
	Key    string
}

func (b *VaultBackend) Fetch(ctx context.Context, name string) (string, error) {
	secret, err := b.Client.KVv2(b.Mount).Get(ctx, name)
	if err != nil {
		return "", fmt.Errorf("vault get %s/%s: %w", b.Mount, name, err)
	}
	v, ok := secret.Data[b.Key].(string)
	if !ok {
		return "", fmt.Errorf("vault secret %s missing key %q", name, b.Key)
	}
	return v, nil
}

// AWSBackend reads a secret value via AWS Secrets Manager.
type AWSBackend struct {
	Client *awssecrets.Client
}

func (b *AWSBackend) Fetch(ctx context.Context, name string) (string, error) {
	out, err := b.Client.GetSecretValue(ctx, &awssecrets.GetSecretValueInput{SecretId: &name})
	if err != nil {
		return "", fmt.Errorf("aws secretsmanager get %s: %w", name, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("aws secret %s has no string value", name)
	}
	return *out.SecretString, nil
}

// GCPBackend reads the latest version of a secret via Google Secret Manager.
type GCPBackend struct {
	Client  *gcpsecrets.Client
	Project string
}

func (b *GCPBackend) Fetch(ctx context.Context, name string) (string, error) {
	resourceName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", b.Project, name)
	resp, err := b.Client.AccessSecretVersion(ctx, &gcpsecretspb.AccessSecretVersionRequest{Name: resourceName})
	if err != nil {
		return "", fmt.Errorf("gcp secretmanager access %s: %w", resourceName, err)
	}
	return string(resp.Payload.Data), nil
}

// Changed is broadcast on Sync's queue whenever a refresh produces a
// different value for any watched secret.
type Changed struct {
	Names []string
}

// Sync refreshes a fixed set of named secrets from backend on an interval,
// driven by AsyncInvokePeriod on queue so refresh always runs serialized
// with the rest of that queue's handlers rather than on its own timer.
// Every refresh that changes a value broadcasts a Changed on queue.
type Sync struct {
	backend Backend
	names   []string
	queue   mqueue.QueueID

	mu     sync.RWMutex
	values map[string]string

	post mqueue.PostID
}

// NewSync builds a Sync for the given secret names; call Start to begin
// periodic refresh.
func NewSync(backend Backend, names []string) *Sync {
	return &Sync{backend: backend, names: names, values: make(map[string]string)}
}

// Get returns the last successfully fetched value for name, or "" if it
// was never fetched.
func (s *Sync) Get(name string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[name]
}

// Start performs an initial synchronous fetch, then schedules a refresh
// every interval on queue via AsyncInvokePeriod.
func (s *Sync) Start(ctx context.Context, queue mqueue.QueueID, interval time.Duration) error {
	s.queue = queue
	if err := s.refresh(ctx); err != nil {
		return fmt.Errorf("initial secret sync: %w", err)
	}

	_, post := mqueue.AsyncInvokePeriod(queue, int64(interval/time.Millisecond), int64(interval/time.Millisecond), func() struct{} {
		if err := s.refresh(context.Background()); err != nil {
			log.Error().Err(err).Msg("secret sync failed")
		}
		return struct{}{}
	})
	s.post = post
	return nil
}

// Stop cancels the periodic refresh.
func (s *Sync) Stop() {
	if !s.post.IsNull() {
		mqueue.CancelMessage(s.post)
	}
}

func (s *Sync) refresh(ctx context.Context) error {
	next := make(map[string]string, len(s.names))
	for _, name := range s.names {
		v, err := s.backend.Fetch(ctx, name)
		if err != nil {
			return err
		}
		next[name] = v
	}

	s.mu.Lock()
	prev := s.values
	s.values = next
	s.mu.Unlock()

	var changed []string
	for name, v := range next {
		if prev[name] != v {
			changed = append(changed, name)
		}
	}

	log.Debug().Int("count", len(next)).Int("changed", len(changed)).Msg("secrets refreshed")

	if len(changed) > 0 && s.queue != mqueue.InvalidQueueID {
		mqueue.BroadcastMessage(s.queue, mqueue.Body{Body1: Changed{Names: changed}}, mqueue.ImmediateTiming())
	}
	return nil
}
