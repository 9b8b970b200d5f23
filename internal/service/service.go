// Package service реализует бизнес-логику объединения заказов.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmeshcher/shipsync-system/internal/fingerprint"
	"github.com/mmeshcher/shipsync-system/internal/model"
	"github.com/mmeshcher/shipsync-system/internal/repository"
	"github.com/mmeshcher/shipsync-system/internal/shopify"
)

// combineWindow — длительность окна, в течение которого новые заказы
// присоединяются к открытому кандидату.
const combineWindow = 6 * time.Hour

// storeTimeout ограничивает каждое обращение к хранилищу.
const storeTimeout = 3 * time.Second

// ErrExternalTag возвращается, когда локальное подтверждение прошло,
// но пометить заказ на внешней платформе не удалось.
var ErrExternalTag = errors.New("external order tagging failed")

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	UpsertOrder(ctx context.Context, customerID, email, shippingHash, orderName string, costCents *int64, since time.Time) error
	FindOpenByCustomer(ctx context.Context, customerID string, since time.Time) (*model.Candidate, error)
	ConfirmByCustomer(ctx context.Context, customerID string) error
	ListUnconfirmed(ctx context.Context) ([]model.Candidate, error)
}

// Tagger описывает контракт внешней платформы для пометки заказа.
type Tagger interface {
	TagOrder(ctx context.Context, shopDomain, accessToken, orderID, tag string) error
}

// ExternalRef адресует заказ на внешней платформе. Передаётся вызывающей
// стороной в каждом запросе подтверждения, сервер эти данные не хранит.
type ExternalRef struct {
	OrderID     string
	ShopDomain  string
	AccessToken string
}

// Service содержит бизнес-логику объединения заказов.
type Service struct {
	repo   Repository
	tagger Tagger
}

// NewService создаёт новый сервис с указанным репозиторием и клиентом платформы.
func NewService(repo Repository, tagger Tagger) *Service {
	return &Service{
		repo:   repo,
		tagger: tagger,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// IngestOrder обрабатывает событие создания заказа. Возвращает false без
// записи, если заказ уже взят в работу складом. Иначе заказ присоединяется
// к открытому кандидату пары (покупатель, отпечаток адреса) внутри окна
// либо создаёт нового кандидата.
func (s *Service) IngestOrder(ctx context.Context, ev model.OrderEvent) (bool, error) {
	if !ev.Eligible() {
		return false, nil
	}

	hash := fingerprint.FromAddress(ev.ShippingAddress)

	var costCents *int64
	if ev.ShippingCost != nil {
		v := int64(*ev.ShippingCost * 100)
		costCents = &v
	}

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	since := time.Now().Add(-combineWindow)
	if err := s.repo.UpsertOrder(ctx, ev.CustomerID, ev.Email, hash, ev.OrderName, costCents, since); err != nil {
		return false, err
	}

	return true, nil
}

// CheckCombinable возвращает вердикт о возможности объединения заказов
// покупателя. Объединять можно только открытого кандидата с двумя и более
// заказами: одиночный заказ объединять не с чем.
func (s *Service) CheckCombinable(ctx context.Context, customerID string) (*model.CombineCheck, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	since := time.Now().Add(-combineWindow)
	c, err := s.repo.FindOpenByCustomer(ctx, customerID, since)
	if err != nil {
		if errors.Is(err, repository.ErrNoCandidate) {
			return &model.CombineCheck{CanCombine: false}, nil
		}
		return nil, err
	}

	if len(c.MemberOrders) < 2 {
		return &model.CombineCheck{CanCombine: false}, nil
	}

	cost := c.ShippingCost
	return &model.CombineCheck{
		CanCombine:   true,
		Orders:       c.MemberOrders,
		ShippingCost: &cost,
	}, nil
}

// ConfirmCombine подтверждает объединение заказов покупателя и, если передан
// ref, помечает заказ на внешней платформе. Локальное подтверждение
// фиксируется независимо от исхода внешнего вызова: сбой пометки
// возвращается как ErrExternalTag и разрешается оператором вручную.
func (s *Service) ConfirmCombine(ctx context.Context, customerID string, ref *ExternalRef) error {
	confirmCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	if err := s.repo.ConfirmByCustomer(confirmCtx, customerID); err != nil {
		return err
	}

	if ref == nil || s.tagger == nil {
		return nil
	}

	if err := s.tagger.TagOrder(ctx, ref.ShopDomain, ref.AccessToken, ref.OrderID, shopify.CombineTag); err != nil {
		return fmt.Errorf("%w: %s", ErrExternalTag, err)
	}

	return nil
}

// ListUnconfirmed возвращает всех неподтверждённых кандидатов для страницы администратора.
func (s *Service) ListUnconfirmed(ctx context.Context) ([]model.Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	return s.repo.ListUnconfirmed(ctx)
}
