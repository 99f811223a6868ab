package qonto

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	transactionsPerPage = 100
	maxTransactionPages = 1000
)

var ErrMissingBankAccount = errors.New("qonto bank account id is not configured")

type Transaction struct {
	TransactionID string     `json:"transaction_id"`
	AmountCents   int64      `json:"amount_cents"`
	Currency      string     `json:"currency"`
	Side          string     `json:"side"`
	Label         string     `json:"label"`
	EmittedAt     time.Time  `json:"emitted_at"`
	SettledAt     *time.Time `json:"settled_at"`
	Status        string     `json:"status"`
	Reference     string     `json:"reference"`
}

type transactionsPage struct {
	Transactions []Transaction `json:"transactions"`
	Meta         struct {
		CurrentPage int  `json:"current_page"`
		NextPage    *int `json:"next_page"`
		TotalPages  int  `json:"total_pages"`
	} `json:"meta"`
}

// ListTransactions walks every page of transactions updated since the given
// time. A zero since fetches the whole history.
func (c *Client) ListTransactions(ctx context.Context, since time.Time) ([]Transaction, error) {
	if c.bankAccountID == "" {
		return nil, ErrMissingBankAccount
	}

	var all []Transaction
	page := 1
	for i := 0; i < maxTransactionPages; i++ {
		query := url.Values{}
		query.Set("bank_account_id", c.bankAccountID)
		query.Set("current_page", strconv.Itoa(page))
		query.Set("per_page", strconv.Itoa(transactionsPerPage))
		query.Set("sort_by", "updated_at:asc")
		if !since.IsZero() {
			query.Set("updated_at_from", since.UTC().Format(time.RFC3339))
		}

		var resp transactionsPage
		if err := c.do(ctx, http.MethodGet, "/v2/transactions?"+query.Encode(), nil, &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.Transactions...)

		if resp.Meta.NextPage == nil || *resp.Meta.NextPage <= page {
			break
		}
		page = *resp.Meta.NextPage
	}
	return all, nil
}
