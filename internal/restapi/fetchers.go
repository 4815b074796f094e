// internal/restapi/fetchers.go
package restapi

import (
	"context"
	"fmt"
	"net/url"

	"clinicsync/internal/model"
)

// TokenSetter is the slice of the client contract a fetch coordinator needs:
// it pushes the session token before issuing any request of a cycle.
type TokenSetter interface {
	SetAccessToken(token string)
	ClearAccessToken()
}

// Collection is one entity family's view of the remote store. The same four
// verbs cover every family; only the collection name, ordering, and row type
// differ, so the typed fetchers below are thin constructions over this.
type Collection[T any] struct {
	client *Client
	name   string
	order  string
}

func NewCollection[T any](client *Client, name, order string) Collection[T] {
	return Collection[T]{client: client, name: name, order: order}
}

func (col Collection[T]) Name() string { return col.name }

// FetchAll returns every row, in the collection's configured order.
func (col Collection[T]) FetchAll(ctx context.Context) ([]T, error) {
	params := url.Values{}
	if col.order != "" {
		params.Set("order", col.order)
	}
	var out []T
	if err := col.client.List(ctx, col.name, params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Create inserts rec and returns the stored representation.
func (col Collection[T]) Create(ctx context.Context, rec T) (T, error) {
	var inserted []T
	if err := col.client.Insert(ctx, col.name, rec, &inserted); err != nil {
		var zero T
		return zero, err
	}
	if len(inserted) == 0 {
		var zero T
		return zero, fmt.Errorf("insert into %s returned no representation", col.name)
	}
	return inserted[0], nil
}

// Update patches the row with the given id.
func (col Collection[T]) Update(ctx context.Context, id string, patch interface{}) error {
	return col.client.Update(ctx, col.name, id, patch)
}

// Delete removes the row with the given id.
func (col Collection[T]) Delete(ctx context.Context, id string) error {
	return col.client.Delete(ctx, col.name, id)
}

// Typed fetchers, one per entity family the coordinators depend on.

func NewInventoryAPI(c *Client) Collection[model.InventoryItem] {
	return NewCollection[model.InventoryItem](c, "items", "name.asc")
}

func NewOrdersAPI(c *Client) Collection[model.Order] {
	return NewCollection[model.Order](c, "orders", "created_at.desc")
}

func NewOrderItemsAPI(c *Client) Collection[model.OrderItem] {
	return NewCollection[model.OrderItem](c, "order_items", "")
}

func NewPricesAPI(c *Client) Collection[model.PriceItem] {
	return NewCollection[model.PriceItem](c, "price_items", "name.asc")
}

func NewCodesAPI(c *Client) Collection[model.MedicalCode] {
	return NewCollection[model.MedicalCode](c, "medical_codes", "code.asc")
}

func NewCodeGroupsAPI(c *Client) Collection[model.CodeGroup] {
	return NewCollection[model.CodeGroup](c, "code_groups", "name.asc")
}

func NewTemplatesAPI(c *Client) Collection[model.FormTemplate] {
	return NewCollection[model.FormTemplate](c, "form_templates", "name.asc")
}

func NewReportsAPI(c *Client) Collection[model.DailyReport] {
	return NewCollection[model.DailyReport](c, "daily_reports", "report_date.desc")
}

func NewProfilesAPI(c *Client) Collection[model.User] {
	return NewCollection[model.User](c, "profiles", "username.asc")
}

// RolePermissionRow is the wire shape of the role_permissions collection:
// one row per role+permission pair.
type RolePermissionRow struct {
	ID         string `json:"id,omitempty"`
	Role       string `json:"role"`
	Permission string `json:"permission"`
}

func NewRolePermissionsAPI(c *Client) Collection[RolePermissionRow] {
	return NewCollection[RolePermissionRow](c, "role_permissions", "role.asc")
}

// DeleteRolePermission removes the single role+permission pair. Matching
// nothing is tolerated: the toggle is eventually consistent by design.
func DeleteRolePermission(ctx context.Context, c *Client, role, permission string) error {
	params := url.Values{
		"role":       {"eq." + role},
		"permission": {"eq." + permission},
	}
	return c.DeleteWhere(ctx, "role_permissions", params)
}
