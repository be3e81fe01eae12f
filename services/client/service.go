package client

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"license-controlplane/pkg/db/option"
	"license-controlplane/pkg/db/pagination"
	"license-controlplane/pkg/errutil"
	"license-controlplane/pkg/gen"
	"license-controlplane/pkg/repository"
)

type Service struct {
	db   *gorm.DB
	repo repository.Repository[Client]
	node *gen.SnowflakeNode
}

type ServiceParams struct {
	fx.In

	DB   *gorm.DB
	Node *gen.SnowflakeNode
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		repo: repository.ProvideStore[Client](p.DB),
		node: p.Node,
	}
}

type CreateRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Document string `json:"document" binding:"required"`
	Phone    string `json:"phone"`
	Contact  string `json:"contact"`
	Notes    string `json:"notes"`
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*Client, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	zapLog := zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
	)

	exist, err := s.repo.FindOne(ctx, &Client{Email: req.Email})
	if err != nil {
		zapLog.Error("failed to query client by email", zap.Error(err))
		return nil, errutil.Internal("failed to query client", err)
	}
	if exist != nil {
		return nil, errutil.Conflict("a client with this email already exists", nil)
	}

	exist, err = s.repo.FindOne(ctx, &Client{Document: req.Document})
	if err != nil {
		zapLog.Error("failed to query client by document", zap.Error(err))
		return nil, errutil.Internal("failed to query client", err)
	}
	if exist != nil {
		return nil, errutil.Conflict("a client with this document already exists", nil)
	}

	c := &Client{
		ID:       s.node.GenerateID().String(),
		Name:     req.Name,
		Email:    req.Email,
		Document: req.Document,
		Phone:    req.Phone,
		Contact:  req.Contact,
		Active:   true,
		Notes:    req.Notes,
	}

	if err := s.repo.Create(ctx, c); err != nil {
		zapLog.Error("failed to create client", zap.Error(err))
		return nil, errutil.Internal("failed to create client", err)
	}

	return c, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Client, error) {
	c, err := s.repo.FindOne(ctx, &Client{ID: id})
	if err != nil {
		return nil, errutil.Internal("failed to query client", err)
	}
	if c == nil {
		return nil, errutil.NotFound("client not found", nil)
	}
	return c, nil
}

func (s *Service) List(ctx context.Context, page pagination.Pagination) ([]*Client, error) {
	clients, err := s.repo.Find(ctx, &Client{}, option.ApplyPagination(page))
	if err != nil {
		return nil, errutil.Internal("failed to list clients", err)
	}
	return clients, nil
}

type UpdateRequest struct {
	Name    *string `json:"name"`
	Phone   *string `json:"phone"`
	Contact *string `json:"contact"`
	Active  *bool   `json:"active"`
	Notes   *string `json:"notes"`
}

func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*Client, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		c.Name = *req.Name
	}
	if req.Phone != nil {
		c.Phone = *req.Phone
	}
	if req.Contact != nil {
		c.Contact = *req.Contact
	}
	if req.Active != nil {
		c.Active = *req.Active
	}
	if req.Notes != nil {
		c.Notes = *req.Notes
	}

	if err := s.repo.Update(ctx, c); err != nil {
		return nil, errutil.Internal("failed to update client", err)
	}
	return c, nil
}

// RequireActive loads a client and rejects inactive ones. License issuance
// goes through here.
func (s *Service) RequireActive(ctx context.Context, id string) (*Client, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.Active {
		return nil, errutil.UnprocessableEntity("client is not active", nil)
	}
	return c, nil
}
