package mongo

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/custody/account"
	"github.com/xraph/custody/address"
	"github.com/xraph/custody/balance"
	"github.com/xraph/custody/id"
	"github.com/xraph/custody/transfer"
	"github.com/xraph/custody/types"
)

// ==================== User models ====================

type userModel struct {
	grove.BaseModel `grove:"table:custody_users"`

	ID        string    `grove:"id,pk"      bson:"_id"`
	Username  string    `grove:"username"   bson:"username"`
	Active    bool      `grove:"active"     bson:"active"`
	CreatedAt time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time `grove:"updated_at" bson:"updated_at"`
}

func toUserModel(u *account.User) *userModel {
	return &userModel{
		ID:        u.ID.String(),
		Username:  u.Username,
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func fromUserModel(m *userModel, keys []userKeyModel) (*account.User, error) {
	userID, err := id.ParseUserID(m.ID)
	if err != nil {
		return nil, err
	}

	u := &account.User{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:       userID,
		Username: m.Username,
		Active:   m.Active,
	}
	for i := range keys {
		k, err := fromUserKeyModel(&keys[i])
		if err != nil {
			return nil, err
		}
		u.Keys = append(u.Keys, *k)
	}
	return u, nil
}

type userKeyModel struct {
	grove.BaseModel `grove:"table:custody_user_keys"`

	ID        string    `grove:"id,pk"      bson:"_id"`
	UserID    string    `grove:"user_id"    bson:"user_id"`
	Key       string    `grove:"key"        bson:"key"`
	LastNonce int64     `grove:"last_nonce" bson:"last_nonce"`
	CreatedAt time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time `grove:"updated_at" bson:"updated_at"`
}

func toUserKeyModel(k *account.UserKey) *userKeyModel {
	return &userKeyModel{
		ID:        k.ID.String(),
		UserID:    k.UserID.String(),
		Key:       k.Key,
		LastNonce: k.LastNonce,
		CreatedAt: k.CreatedAt,
		UpdatedAt: k.UpdatedAt,
	}
}

func fromUserKeyModel(m *userKeyModel) (*account.UserKey, error) {
	keyID, err := id.ParseUserKeyID(m.ID)
	if err != nil {
		return nil, err
	}
	userID, err := id.ParseUserID(m.UserID)
	if err != nil {
		return nil, err
	}

	return &account.UserKey{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:        keyID,
		UserID:    userID,
		Key:       m.Key,
		LastNonce: m.LastNonce,
	}, nil
}

// ==================== Balance models ====================

type balanceModel struct {
	grove.BaseModel `grove:"table:custody_balances"`

	ID        string    `grove:"id,pk"      bson:"_id"`
	UserID    string    `grove:"user_id"    bson:"user_id"`
	Currency  string    `grove:"currency"   bson:"currency"`
	Total     int64     `grove:"total"      bson:"total"`
	Available int64     `grove:"available"  bson:"available"`
	Reference string    `grove:"reference"  bson:"reference"`
	Version   int64     `grove:"version"    bson:"version"`
	CreatedAt time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time `grove:"updated_at" bson:"updated_at"`
}

func toBalanceModel(b *balance.Balance) *balanceModel {
	return &balanceModel{
		ID:        b.ID.String(),
		UserID:    b.UserID.String(),
		Currency:  b.Currency,
		Total:     b.Total.Amount,
		Available: b.Available.Amount,
		Reference: b.Reference,
		Version:   b.Version,
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
}

func fromBalanceModel(m *balanceModel) (*balance.Balance, error) {
	balID, err := id.ParseBalanceID(m.ID)
	if err != nil {
		return nil, err
	}
	userID, err := id.ParseUserID(m.UserID)
	if err != nil {
		return nil, err
	}

	return &balance.Balance{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:        balID,
		UserID:    userID,
		Currency:  m.Currency,
		Total:     types.Money{Amount: m.Total, Currency: m.Currency},
		Available: types.Money{Amount: m.Available, Currency: m.Currency},
		Reference: m.Reference,
		Version:   m.Version,
	}, nil
}

// ==================== Address models ====================

type addressModel struct {
	grove.BaseModel `grove:"table:custody_addresses"`

	ID        string    `grove:"id,pk"      bson:"_id"`
	UserID    string    `grove:"user_id"    bson:"user_id"`
	Value     string    `grove:"value"      bson:"value"`
	Currency  string    `grove:"currency"   bson:"currency"`
	Network   string    `grove:"network"    bson:"network"`
	State     string    `grove:"state"      bson:"state"`
	CreatedAt time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time `grove:"updated_at" bson:"updated_at"`
}

func toAddressModel(a *address.Address) *addressModel {
	return &addressModel{
		ID:        a.ID.String(),
		UserID:    a.UserID.String(),
		Value:     a.Value,
		Currency:  a.Currency,
		Network:   a.Network,
		State:     string(a.State),
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func fromAddressModel(m *addressModel) (*address.Address, error) {
	addrID, err := id.ParseAddressID(m.ID)
	if err != nil {
		return nil, err
	}
	userID, err := id.ParseUserID(m.UserID)
	if err != nil {
		return nil, err
	}

	return &address.Address{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:       addrID,
		UserID:   userID,
		Value:    m.Value,
		Currency: m.Currency,
		Network:  m.Network,
		State:    address.State(m.State),
	}, nil
}

// ==================== Debit models ====================

type debitModel struct {
	grove.BaseModel `grove:"table:custody_debits"`

	ID        string    `grove:"id,pk"      bson:"_id"`
	UserID    string    `grove:"user_id"    bson:"user_id"`
	Amount    int64     `grove:"amount"     bson:"amount"`
	Debited   int64     `grove:"debited"    bson:"debited"`
	Fee       int64     `grove:"fee"        bson:"fee"`
	Address   string    `grove:"address"    bson:"address"`
	Currency  string    `grove:"currency"   bson:"currency"`
	Network   string    `grove:"network"    bson:"network"`
	State     string    `grove:"state"      bson:"state"`
	Reference string    `grove:"reference"  bson:"reference"`
	RefID     string    `grove:"ref_id"     bson:"ref_id"`
	CreatedAt time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time `grove:"updated_at" bson:"updated_at"`
}

func toDebitModel(d *transfer.Debit) *debitModel {
	return &debitModel{
		ID:        d.ID.String(),
		UserID:    d.UserID.String(),
		Amount:    d.Amount.Amount,
		Debited:   d.Debited.Amount,
		Fee:       d.Fee.Amount,
		Address:   d.Address,
		Currency:  d.Currency,
		Network:   d.Network,
		State:     string(d.State),
		Reference: d.Reference,
		RefID:     d.RefID,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func fromDebitModel(m *debitModel) (*transfer.Debit, error) {
	debitID, err := id.ParseDebitID(m.ID)
	if err != nil {
		return nil, err
	}
	userID, err := id.ParseUserID(m.UserID)
	if err != nil {
		return nil, err
	}

	return &transfer.Debit{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:        debitID,
		UserID:    userID,
		Amount:    types.Money{Amount: m.Amount, Currency: m.Currency},
		Debited:   types.Money{Amount: m.Debited, Currency: m.Currency},
		Fee:       types.Money{Amount: m.Fee, Currency: m.Currency},
		Address:   m.Address,
		Currency:  m.Currency,
		Network:   m.Network,
		State:     transfer.State(m.State),
		Reference: m.Reference,
		RefID:     m.RefID,
	}, nil
}

// ==================== Credit models ====================

type creditModel struct {
	grove.BaseModel `grove:"table:custody_credits"`

	ID        string    `grove:"id,pk"      bson:"_id"`
	UserID    string    `grove:"user_id"    bson:"user_id"`
	Amount    int64     `grove:"amount"     bson:"amount"`
	Address   string    `grove:"address"    bson:"address"`
	Currency  string    `grove:"currency"   bson:"currency"`
	Network   string    `grove:"network"    bson:"network"`
	State     string    `grove:"state"      bson:"state"`
	Reference string    `grove:"reference"  bson:"reference"`
	RefID     string    `grove:"ref_id"     bson:"ref_id"`
	CreatedAt time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time `grove:"updated_at" bson:"updated_at"`
}

func toCreditModel(c *transfer.Credit) *creditModel {
	return &creditModel{
		ID:        c.ID.String(),
		UserID:    c.UserID.String(),
		Amount:    c.Amount.Amount,
		Address:   c.Address,
		Currency:  c.Currency,
		Network:   c.Network,
		State:     string(c.State),
		Reference: c.Reference,
		RefID:     c.RefID,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func fromCreditModel(m *creditModel) (*transfer.Credit, error) {
	creditID, err := id.ParseCreditID(m.ID)
	if err != nil {
		return nil, err
	}
	userID, err := id.ParseUserID(m.UserID)
	if err != nil {
		return nil, err
	}

	return &transfer.Credit{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:        creditID,
		UserID:    userID,
		Amount:    types.Money{Amount: m.Amount, Currency: m.Currency},
		Address:   m.Address,
		Currency:  m.Currency,
		Network:   m.Network,
		State:     transfer.State(m.State),
		Reference: m.Reference,
		RefID:     m.RefID,
	}, nil
}
