package systems

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"lethe/internal/erasure/models"
	"lethe/internal/sentinel"
	id "lethe/pkg/domain"
	"lethe/pkg/platform/circuit"
)

// PaymentAPI is the slice of the external billing processor's API the
// engine needs. Implementations return sentinel.ErrNotFound (optionally
// wrapped) when the customer identity does not exist.
type PaymentAPI interface {
	DeleteCustomer(ctx context.Context, customerID string) error
	CustomerExists(ctx context.Context, customerID string) (bool, error)
}

// CustomerDirectory resolves a subject to its linked external billing
// identity. sentinel.ErrNotFound means the subject has no linked identity.
type CustomerDirectory interface {
	CustomerIDForSubject(ctx context.Context, subjectID id.SubjectID) (string, error)
}

// PaymentSystem deletes the subject's identity in the external payment
// processor. "Identity not found" is success: a previous partial run may
// already have removed it, and retries must not re-fail on that step.
type PaymentSystem struct {
	api       PaymentAPI
	directory CustomerDirectory
}

// NewPaymentSystem constructs the payment secondary system.
func NewPaymentSystem(api PaymentAPI, directory CustomerDirectory) *PaymentSystem {
	return &PaymentSystem{api: api, directory: directory}
}

func (p *PaymentSystem) Type() models.SystemType {
	return models.SystemPayment
}

// Erase deletes the subject's external identity, treating an unlinked
// subject and an already-deleted identity both as no-op successes.
func (p *PaymentSystem) Erase(ctx context.Context, subjectID id.SubjectID) (int, error) {
	customerID, err := p.directory.CustomerIDForSubject(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("resolve billing identity: %w", err)
	}
	if err := p.api.DeleteCustomer(ctx, customerID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("delete billing identity %s: %w", customerID, err)
	}
	return 1, nil
}

func (p *PaymentSystem) ExistsForSubject(ctx context.Context, subjectID id.SubjectID) (bool, error) {
	customerID, err := p.directory.CustomerIDForSubject(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("resolve billing identity: %w", err)
	}
	exists, err := p.api.CustomerExists(ctx, customerID)
	if err != nil {
		return false, fmt.Errorf("probe billing identity %s: %w", customerID, err)
	}
	return exists, nil
}

func (p *PaymentSystem) ResidualCount(ctx context.Context, subjectID id.SubjectID) (int, error) {
	exists, err := p.ExistsForSubject(ctx, subjectID)
	if err != nil {
		return 0, err
	}
	if exists {
		return 1, nil
	}
	return 0, nil
}

// HTTPPaymentAPI talks to the processor's REST API. A circuit breaker
// guards both operations: when the processor is down, the cascade fails
// fast with a transient error rather than burning the step timeout on
// every request in the batch.
type HTTPPaymentAPI struct {
	baseURL string
	apiKey  string
	client  *http.Client
	breaker *circuit.Breaker
}

// NewHTTPPaymentAPI constructs a client for the external processor.
func NewHTTPPaymentAPI(baseURL, apiKey string) *HTTPPaymentAPI {
	return &HTTPPaymentAPI{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
		breaker: circuit.New("payment-api"),
	}
}

func (a *HTTPPaymentAPI) DeleteCustomer(ctx context.Context, customerID string) error {
	if !a.breaker.Allow() {
		return fmt.Errorf("payment API circuit open: %w", sentinel.ErrUnavailable)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, a.customerURL(customerID), nil)
	if err != nil {
		return fmt.Errorf("build delete request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		a.breaker.RecordFailure()
		return fmt.Errorf("call payment API: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		a.breaker.RecordSuccess()
		return sentinel.ErrNotFound
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		a.breaker.RecordSuccess()
		return nil
	case resp.StatusCode >= 500:
		a.breaker.RecordFailure()
		return fmt.Errorf("payment API delete returned %d", resp.StatusCode)
	default:
		return fmt.Errorf("payment API delete returned %d", resp.StatusCode)
	}
}

func (a *HTTPPaymentAPI) CustomerExists(ctx context.Context, customerID string) (bool, error) {
	if !a.breaker.Allow() {
		return false, fmt.Errorf("payment API circuit open: %w", sentinel.ErrUnavailable)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.customerURL(customerID), nil)
	if err != nil {
		return false, fmt.Errorf("build probe request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		a.breaker.RecordFailure()
		return false, fmt.Errorf("call payment API: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		a.breaker.RecordSuccess()
		return false, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		a.breaker.RecordSuccess()
		return true, nil
	case resp.StatusCode >= 500:
		a.breaker.RecordFailure()
		return false, fmt.Errorf("payment API probe returned %d", resp.StatusCode)
	default:
		return false, fmt.Errorf("payment API probe returned %d", resp.StatusCode)
	}
}

func (a *HTTPPaymentAPI) customerURL(customerID string) string {
	return fmt.Sprintf("%s/v1/customers/%s", a.baseURL, customerID)
}

// InMemoryPaymentAPI fakes the external processor for tests and dev mode.
// It counts delete attempts so tests can assert exactly-once side effects.
type InMemoryPaymentAPI struct {
	mu        sync.Mutex
	customers map[string]bool
	deletes   map[string]int
}

// NewInMemoryPaymentAPI constructs an empty fake processor.
func NewInMemoryPaymentAPI() *InMemoryPaymentAPI {
	return &InMemoryPaymentAPI{
		customers: make(map[string]bool),
		deletes:   make(map[string]int),
	}
}

// AddCustomer registers an existing external identity.
func (a *InMemoryPaymentAPI) AddCustomer(customerID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.customers[customerID] = true
}

func (a *InMemoryPaymentAPI) DeleteCustomer(_ context.Context, customerID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deletes[customerID]++
	if !a.customers[customerID] {
		return sentinel.ErrNotFound
	}
	delete(a.customers, customerID)
	return nil
}

func (a *InMemoryPaymentAPI) CustomerExists(_ context.Context, customerID string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.customers[customerID], nil
}

// DeleteAttempts reports how many times deletion was attempted for the id.
func (a *InMemoryPaymentAPI) DeleteAttempts(customerID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.deletes[customerID]
}

// StaticCustomerDirectory maps subjects to external identities in memory.
type StaticCustomerDirectory struct {
	mu      sync.RWMutex
	entries map[id.SubjectID]string
}

// NewStaticCustomerDirectory constructs an empty directory.
func NewStaticCustomerDirectory() *StaticCustomerDirectory {
	return &StaticCustomerDirectory{entries: make(map[id.SubjectID]string)}
}

// Link associates a subject with an external customer id.
func (d *StaticCustomerDirectory) Link(subjectID id.SubjectID, customerID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[subjectID] = customerID
}

func (d *StaticCustomerDirectory) CustomerIDForSubject(_ context.Context, subjectID id.SubjectID) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	customerID, ok := d.entries[subjectID]
	if !ok {
		return "", sentinel.ErrNotFound
	}
	return customerID, nil
}
