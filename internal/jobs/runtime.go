package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/docsense/docsense-backend/internal/domain"
	"github.com/docsense/docsense-backend/internal/pkg/logger"
)

// Context is the execution handle for one claimed job run. Handlers read
// their input through Payload accessors and report failure by returning an
// error; the worker owns the job_run row transitions.
type Context struct {
	Ctx context.Context
	Log *logger.Logger
	Job *domain.JobRun

	payload map[string]any
}

func NewContext(ctx context.Context, log *logger.Logger, job *domain.JobRun) *Context {
	c := &Context{Ctx: ctx, Log: log, Job: job}
	if len(job.Payload) > 0 {
		// Decode failures surface later as missing payload fields.
		_ = json.Unmarshal(job.Payload, &c.payload)
	}
	return c
}

func (c *Context) Payload() map[string]any {
	return c.payload
}

func (c *Context) PayloadString(key string) string {
	if c.payload == nil {
		return ""
	}
	s, _ := c.payload[key].(string)
	return s
}

func (c *Context) PayloadUUID(key string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.PayloadString(key))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// Handler runs one job type.
type Handler interface {
	Type() string
	Run(jc *Context) error
}

type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(h Handler) error {
	if h == nil {
		return fmt.Errorf("nil handler")
	}
	t := h.Type()
	if t == "" {
		return fmt.Errorf("handler Type() is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[t]; exists {
		return fmt.Errorf("handler already registered for job_type=%s", t)
	}
	r.handlers[t] = h
	return nil
}

func (r *Registry) Get(jobType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}
