package cart

import (
	"context"

	"github.com/ariefcatur/go-marketplace-orders/internal/catalog"
)

type Products interface {
	Get(ctx context.Context, id string) (catalog.Product, error)
}

type Lines interface {
	Items(ctx context.Context, userID string) ([]Item, error)
	Quantity(ctx context.Context, userID, productID string) (int, error)
	Add(ctx context.Context, userID, productID string, qty int) (Line, error)
	SetQuantity(ctx context.Context, userID, productID string, qty int) error
	Remove(ctx context.Context, userID, productID string) error
	Clear(ctx context.Context, userID string) error
}

// Service adds the catalog checks the HTTP layer expects on cart edits.
type Service struct {
	Lines    Lines
	Products Products
}

func (s *Service) View(ctx context.Context, userID string) (Cart, error) {
	items, err := s.Lines.Items(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	return Summarize(userID, items), nil
}

func (s *Service) Add(ctx context.Context, userID, productID string, qty int) (Cart, error) {
	if qty < 1 {
		return Cart{}, ErrInvalidQuantity
	}
	p, err := s.Products.Get(ctx, productID)
	if err != nil {
		return Cart{}, err
	}
	have, err := s.Lines.Quantity(ctx, userID, productID)
	if err != nil {
		return Cart{}, err
	}
	if have+qty > p.Stock {
		return Cart{}, &ExceedsStockError{ProductID: productID, Requested: have + qty, Available: p.Stock}
	}
	if _, err := s.Lines.Add(ctx, userID, productID, qty); err != nil {
		return Cart{}, err
	}
	return s.View(ctx, userID)
}

func (s *Service) Update(ctx context.Context, userID, productID string, qty int) (Cart, error) {
	if qty < 1 {
		return Cart{}, ErrInvalidQuantity
	}
	p, err := s.Products.Get(ctx, productID)
	if err != nil {
		return Cart{}, err
	}
	if qty > p.Stock {
		return Cart{}, &ExceedsStockError{ProductID: productID, Requested: qty, Available: p.Stock}
	}
	if err := s.Lines.SetQuantity(ctx, userID, productID, qty); err != nil {
		return Cart{}, err
	}
	return s.View(ctx, userID)
}

func (s *Service) Remove(ctx context.Context, userID, productID string) (Cart, error) {
	if err := s.Lines.Remove(ctx, userID, productID); err != nil {
		return Cart{}, err
	}
	return s.View(ctx, userID)
}

func (s *Service) Clear(ctx context.Context, userID string) (Cart, error) {
	if err := s.Lines.Clear(ctx, userID); err != nil {
		return Cart{}, err
	}
	return Summarize(userID, nil), nil
}
