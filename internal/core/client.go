package core

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"navisol/pkg/domain"
)

// ClientRequest carries editable client fields.
type ClientRequest struct {
	Name    string
	Email   string
	Country string
}

func (r ClientRequest) validate(op string) error {
	if strings.TrimSpace(r.Name) == "" {
		return domain.NewError(domain.KindValidation, op, "client name is required").WithField("name")
	}
	if r.Email != "" && !strings.Contains(r.Email, "@") {
		return domain.NewError(domain.KindValidation, op, "email %q is not an address", r.Email).WithField("email")
	}
	return nil
}

// CreateClient registers a client.
func (s *Service) CreateClient(ctx context.Context, req ClientRequest, actor Actor) (Client, error) {
	const op = "create_client"
	var out Client
	err := s.mutate(ctx, op, actor, domain.EntityClient, "", false, func(t *txn) error {
		if err := s.authorize(op, actor, domain.PermCreateProject); err != nil {
			return err
		}
		if err := req.validate(op); err != nil {
			return err
		}
		out = Client{
			Base:    domain.Base{ID: s.newID(), CreatedAt: t.now, UpdatedAt: t.now},
			Name:    strings.TrimSpace(req.Name),
			Email:   strings.TrimSpace(req.Email),
			Country: strings.TrimSpace(req.Country),
		}
		if err := t.put(domain.NamespaceClients, out.ID, out); err != nil {
			return err
		}
		_, err := t.record(domain.AuditCreate, domain.EntityClient, out.ID, fmt.Sprintf("created client %q", out.Name), nil, out, actor)
		return err
	})
	return out, err
}

// UpdateClient replaces a client's editable fields.
func (s *Service) UpdateClient(ctx context.Context, id string, req ClientRequest, actor Actor) (Client, error) {
	const op = "update_client"
	var out Client
	err := s.mutate(ctx, op, actor, domain.EntityClient, id, false, func(t *txn) error {
		if err := s.authorize(op, actor, domain.PermEditProject); err != nil {
			return err
		}
		if err := req.validate(op); err != nil {
			return err
		}
		c, err := t.client(op, id)
		if err != nil {
			return err
		}
		before := c
		c.Name = strings.TrimSpace(req.Name)
		c.Email = strings.TrimSpace(req.Email)
		c.Country = strings.TrimSpace(req.Country)
		c.UpdatedAt = t.now
		if err := t.put(domain.NamespaceClients, c.ID, c); err != nil {
			return err
		}
		out = c
		_, err = t.record(domain.AuditUpdate, domain.EntityClient, c.ID, fmt.Sprintf("updated client %q", c.Name), before, c, actor)
		return err
	})
	return out, err
}

// ArchiveClient soft-deletes a client.
func (s *Service) ArchiveClient(ctx context.Context, id string, actor Actor) (Client, error) {
	const op = "archive_client"
	var out Client
	err := s.mutate(ctx, op, actor, domain.EntityClient, id, false, func(t *txn) error {
		if err := s.authorize(op, actor, domain.PermArchiveProject); err != nil {
			return err
		}
		c, err := t.client(op, id)
		if err != nil {
			return err
		}
		now := t.now
		c.ArchivedAt = &now
		c.UpdatedAt = now
		if err := t.put(domain.NamespaceClients, c.ID, c); err != nil {
			return err
		}
		out = c
		_, err = t.record(domain.AuditArchive, domain.EntityClient, c.ID, fmt.Sprintf("archived client %q", c.Name), nil, nil, actor)
		return err
	})
	return out, err
}

func (t *txn) client(op, id string) (Client, error) {
	c, ok, err := load[Client](t.tx, domain.NamespaceClients, id)
	if err != nil {
		return Client{}, err
	}
	if !ok {
		return Client{}, notFound(op, domain.EntityClient, id)
	}
	if c.ArchivedAt != nil {
		return Client{}, domain.NewError(domain.KindInvalidState, op, "client %q is archived", c.Name).
			WithField("archived_at").WithEntity(domain.EntityClient, id)
	}
	return c, nil
}

// ListClients returns active clients ordered by name.
func (s *Service) ListClients(ctx context.Context) ([]Client, error) {
	var out []Client
	err := s.store.View(ctx, func(view TransactionView) error {
		all, err := loadAll[Client](view, domain.NamespaceClients, func(r domain.Record) bool {
			c, err := domain.Decode[Client](r.Payload)
			return err == nil && c.ArchivedAt == nil
		})
		out = all
		return err
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}
