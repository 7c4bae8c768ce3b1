package dispatch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/aevon-lab/aevon-rum/internal/clock"
	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// SigningService is the service name in the credential scope.
const SigningService = "rum"

const (
	contentSHA256Header = "X-Amz-Content-Sha256"
	presignExpiry       = "60"
)

// ErrNoCredentials is returned when no provider in a chain yields credentials.
var ErrNoCredentials = errors.New("no credentials available")

// Signer signs outgoing requests with SigV4 using credentials from a
// replaceable provider.
type Signer struct {
	region string
	clock  clock.Clock
	v4     *v4.Signer

	mu       sync.RWMutex
	provider aws.CredentialsProvider
}

// NewSigner creates a signer for region. provider is wrapped in a
// credentials cache so short-lived credentials are refreshed on expiry.
func NewSigner(region string, provider aws.CredentialsProvider, clk clock.Clock) *Signer {
	if clk == nil {
		clk = clock.Real
	}
	s := &Signer{region: region, clock: clk, v4: v4.NewSigner()}
	s.SetCredentialsProvider(provider)
	return s
}

// SetCredentialsProvider replaces the credential source used by later requests.
func (s *Signer) SetCredentialsProvider(provider aws.CredentialsProvider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if provider == nil {
		s.provider = nil
		return
	}
	if _, cached := provider.(*aws.CredentialsCache); !cached {
		provider = aws.NewCredentialsCache(provider)
	}
	s.provider = provider
}

func (s *Signer) credentials(ctx context.Context) (aws.Credentials, error) {
	s.mu.RLock()
	provider := s.provider
	s.mu.RUnlock()

	if provider == nil {
		return aws.Credentials{}, ErrNoCredentials
	}
	creds, err := provider.Retrieve(ctx)
	if err != nil {
		return aws.Credentials{}, fmt.Errorf("failed to retrieve credentials: %w", err)
	}
	return creds, nil
}

// Sign adds SigV4 authorization headers to req. body must be exactly the
// bytes that will be sent.
func (s *Signer) Sign(ctx context.Context, req *http.Request, body []byte) error {
	creds, err := s.credentials(ctx)
	if err != nil {
		return err
	}
	hash := payloadHash(body)
	req.Header.Set(contentSHA256Header, hash)
	if err := s.v4.SignHTTP(ctx, creds, req, hash, SigningService, s.region, s.clock.Now()); err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}
	return nil
}

// Presign returns the URL of req with the signature carried in query
// parameters, for transports that cannot set headers.
func (s *Signer) Presign(ctx context.Context, req *http.Request, body []byte) (string, error) {
	creds, err := s.credentials(ctx)
	if err != nil {
		return "", err
	}

	q := req.URL.Query()
	q.Set("X-Amz-Expires", presignExpiry)
	req.URL.RawQuery = q.Encode()

	signed, _, err := s.v4.PresignHTTP(ctx, creds, req, payloadHash(body), SigningService, s.region, s.clock.Now())
	if err != nil {
		return "", fmt.Errorf("failed to presign request: %w", err)
	}
	return signed, nil
}

func payloadHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// ChainProvider tries each provider in order and returns the first
// credentials retrieved successfully.
type ChainProvider []aws.CredentialsProvider

// Retrieve implements aws.CredentialsProvider.
func (c ChainProvider) Retrieve(ctx context.Context) (aws.Credentials, error) {
	var errs []error
	for _, p := range c {
		if p == nil {
			continue
		}
		creds, err := p.Retrieve(ctx)
		if err == nil {
			return creds, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return aws.Credentials{}, ErrNoCredentials
	}
	return aws.Credentials{}, fmt.Errorf("%w: %w", ErrNoCredentials, errors.Join(errs...))
}

// StaticCredentials are long-lived keys supplied through configuration.
type StaticCredentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// Empty reports whether no access key was configured.
func (c StaticCredentials) Empty() bool {
	return c.AccessKeyID == "" || c.SecretAccessKey == ""
}

// Provider returns a static provider for c.
func (c StaticCredentials) Provider() aws.CredentialsProvider {
	return credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, c.SessionToken)
}

// DefaultCredentialsProvider builds the default chain: the configured static
// keys when present, then the SDK default chain (environment, shared config,
// web identity, container and instance roles).
func DefaultCredentialsProvider(region string, static StaticCredentials) aws.CredentialsProvider {
	var chain ChainProvider
	if !static.Empty() {
		chain = append(chain, static.Provider())
	}
	chain = append(chain, &sdkDefaultProvider{region: region})
	return aws.NewCredentialsCache(chain)
}

// sdkDefaultProvider resolves the SDK default chain lazily, on first use.
type sdkDefaultProvider struct {
	region string

	once     sync.Once
	provider aws.CredentialsProvider
	err      error
}

func (p *sdkDefaultProvider) Retrieve(ctx context.Context) (aws.Credentials, error) {
	p.once.Do(func() {
		cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(p.region))
		if err != nil {
			p.err = fmt.Errorf("failed to load default aws config: %w", err)
			return
		}
		p.provider = cfg.Credentials
	})
	if p.err != nil {
		return aws.Credentials{}, p.err
	}
	if p.provider == nil {
		return aws.Credentials{}, ErrNoCredentials
	}
	return p.provider.Retrieve(ctx)
}
