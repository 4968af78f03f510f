package handler

import "fmt"

// productNotFoundError indicates a requested product does not exist.
type productNotFoundError struct {
	ProductID string
}

func (e *productNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// invalidQuantityError indicates a line item has a non-positive quantity.
type invalidQuantityError struct {
	ProductID string
}

func (e *invalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}
