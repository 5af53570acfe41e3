package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/internal/domain"
	pkgkafka "github.com/DeepanshuParakh29/ElitereplicasIn-sub000/pkg/kafka"
	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/pkg/logger"
)

// Kafka topics for identity events. Each event type has its own topic.
const (
	TopicUserRegistered      = "elitereplicas.user.registered"
	TopicUserLoggedIn        = "elitereplicas.user.logged_in"
	TopicAdminLoggedIn       = "elitereplicas.admin.logged_in"
	TopicUserPasswordChanged = "elitereplicas.user.password_changed"
)

// Aggregate types.
const (
	AggregateTypeUser  = "user"
	AggregateTypeAdmin = "admin"
)

// SourceAPIEdge identifies events originating from this service.
const SourceAPIEdge = "api-edge"

// UserRegisteredData is the payload of a user.registered event.
type UserRegisteredData struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// LoggedInData is the payload of user.logged_in and admin.logged_in events.
type LoggedInData struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	LoggedInAt time.Time `json:"logged_in_at"`
}

// PasswordChangedData is the payload of a user.password_changed event.
type PasswordChangedData struct {
	ID    string      `json:"id"`
	Email string      `json:"email"`
	Kind  domain.Kind `json:"kind"`
}

// Publisher writes an event envelope to a topic. *pkgkafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes identity domain events.
type Producer struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(publisher Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		publisher: publisher,
		logger:    logger,
	}
}

// PublishUserRegistered publishes a user.registered event.
func (p *Producer) PublishUserRegistered(ctx context.Context, user *domain.User) error {
	data := UserRegisteredData{
		ID:    user.ID,
		Email: user.Email,
		Name:  user.Name,
		Role:  user.Role,
	}
	return p.publish(ctx, TopicUserRegistered, user.ID, AggregateTypeUser, data)
}

// PublishUserLoggedIn publishes a user.logged_in event.
func (p *Producer) PublishUserLoggedIn(ctx context.Context, user *domain.User) error {
	data := LoggedInData{
		ID:         user.ID,
		Email:      user.Email,
		Role:       user.Role,
		LoggedInAt: time.Now().UTC(),
	}
	return p.publish(ctx, TopicUserLoggedIn, user.ID, AggregateTypeUser, data)
}

// PublishAdminLoggedIn publishes an admin.logged_in event.
func (p *Producer) PublishAdminLoggedIn(ctx context.Context, admin *domain.AdminUser) error {
	data := LoggedInData{
		ID:         admin.ID,
		Email:      admin.Email,
		Role:       admin.Role,
		LoggedInAt: time.Now().UTC(),
	}
	return p.publish(ctx, TopicAdminLoggedIn, admin.ID, AggregateTypeAdmin, data)
}

// PublishPasswordChanged publishes a user.password_changed event for either
// principal kind.
func (p *Producer) PublishPasswordChanged(ctx context.Context, principal domain.Principal) error {
	aggregate := AggregateTypeUser
	if principal.IsAdmin() {
		aggregate = AggregateTypeAdmin
	}
	data := PasswordChangedData{
		ID:    principal.ID,
		Email: principal.Email,
		Kind:  principal.Kind,
	}
	return p.publish(ctx, TopicUserPasswordChanged, principal.ID, aggregate, data)
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType string, data any) error {
	event, err := pkgkafka.NewEvent(topic, aggregateID, aggregateType, SourceAPIEdge, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}
	if id, kind := logger.PrincipalFromContext(ctx); id != "" {
		event.WithMetadata("actor_id", id).WithMetadata("actor_kind", kind)
	}

	if err := p.publisher.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("aggregate_id", aggregateID),
	)
	return nil
}
