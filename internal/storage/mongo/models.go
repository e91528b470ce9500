package mongo

import (
	"time"

	"github.com/mmynk/groupledger/internal/models"
)

type userModel struct {
	ID           string `bson:"_id"`
	Email        string `bson:"email"`
	Role         string `bson:"role"`
	AdminID      string `bson:"admin_id"`
	Credits      int    `bson:"credits"`
	PasswordHash string `bson:"password_hash"`
	CreatedAt    int64  `bson:"created_at"`
}

type paymentModel struct {
	Amount        float64 `bson:"amount"`
	Currency      string  `bson:"currency"`
	LastSettledAt int64   `bson:"last_settled_at"`
	IsPaid        bool    `bson:"is_paid"`
}

type groupModel struct {
	ID          string       `bson:"_id"`
	Name        string       `bson:"name"`
	Description string       `bson:"description"`
	AdminEmail  string       `bson:"admin_email"`
	Members     []string     `bson:"members"`
	Payment     paymentModel `bson:"payment"`
	Version     int64        `bson:"version"`
	CreatedAt   int64        `bson:"created_at"`
}

type splitModel struct {
	MemberEmail string  `bson:"member_email"`
	Amount      float64 `bson:"amount"`
	IsPaid      bool    `bson:"is_paid"`
}

type expenseModel struct {
	ID          string       `bson:"_id"`
	GroupID     string       `bson:"group_id"`
	Title       string       `bson:"title"`
	Description string       `bson:"description"`
	TotalAmount float64      `bson:"total_amount"`
	PaidBy      string       `bson:"paid_by"`
	Splits      []splitModel `bson:"splits"`
	IsSettled   bool         `bson:"is_settled"`
	Version     int64        `bson:"version"`
	CreatedAt   int64        `bson:"created_at"`
}

type auditModel struct {
	ID        string    `bson:"_id"`
	GroupID   string    `bson:"group_id"`
	Message   string    `bson:"message"`
	CreatedAt time.Time `bson:"created_at"`
}

func toUserModel(u *models.User) *userModel {
	return &userModel{
		ID:           u.ID,
		Email:        u.Email,
		Role:         u.Role,
		AdminID:      u.AdminID,
		Credits:      u.Credits,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
	}
}

func fromUserModel(m *userModel) *models.User {
	return &models.User{
		ID:           m.ID,
		Email:        m.Email,
		Role:         m.Role,
		AdminID:      m.AdminID,
		Credits:      m.Credits,
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt,
	}
}

func toGroupModel(g *models.Group) *groupModel {
	members := g.MembersEmail
	if members == nil {
		members = []string{}
	}
	return &groupModel{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		AdminEmail:  g.AdminEmail,
		Members:     members,
		Payment: paymentModel{
			Amount:        g.PaymentStatus.Amount,
			Currency:      g.PaymentStatus.Currency,
			LastSettledAt: g.PaymentStatus.LastSettledAt,
			IsPaid:        g.PaymentStatus.IsPaid,
		},
		Version:   g.Version,
		CreatedAt: g.CreatedAt,
	}
}

func fromGroupModel(m *groupModel) *models.Group {
	members := m.Members
	if members == nil {
		members = []string{}
	}
	return &models.Group{
		ID:           m.ID,
		Name:         m.Name,
		Description:  m.Description,
		AdminEmail:   m.AdminEmail,
		MembersEmail: members,
		PaymentStatus: models.PaymentStatus{
			Amount:        m.Payment.Amount,
			Currency:      m.Payment.Currency,
			LastSettledAt: m.Payment.LastSettledAt,
			IsPaid:        m.Payment.IsPaid,
		},
		Version:   m.Version,
		CreatedAt: m.CreatedAt,
	}
}

func toSplitModels(splits []models.SplitDetail) []splitModel {
	out := make([]splitModel, len(splits))
	for i, sd := range splits {
		out[i] = splitModel{MemberEmail: sd.MemberEmail, Amount: sd.Amount, IsPaid: sd.IsPaid}
	}
	return out
}

func toExpenseModel(e *models.Expense) *expenseModel {
	return &expenseModel{
		ID:          e.ID,
		GroupID:     e.GroupID,
		Title:       e.Title,
		Description: e.Description,
		TotalAmount: e.TotalAmount,
		PaidBy:      e.PaidBy,
		Splits:      toSplitModels(e.SplitDetails),
		IsSettled:   e.IsSettled,
		Version:     e.Version,
		CreatedAt:   e.CreatedAt,
	}
}

func fromExpenseModel(m *expenseModel) *models.Expense {
	splits := make([]models.SplitDetail, len(m.Splits))
	for i, sd := range m.Splits {
		splits[i] = models.SplitDetail{MemberEmail: sd.MemberEmail, Amount: sd.Amount, IsPaid: sd.IsPaid}
	}
	return &models.Expense{
		ID:           m.ID,
		GroupID:      m.GroupID,
		Title:        m.Title,
		Description:  m.Description,
		TotalAmount:  m.TotalAmount,
		PaidBy:       m.PaidBy,
		SplitDetails: splits,
		IsSettled:    m.IsSettled,
		Version:      m.Version,
		CreatedAt:    m.CreatedAt,
	}
}

// purchaseModel is keyed by order id, so _id uniqueness rejects a replay.
type purchaseModel struct {
	OrderID   string `bson:"_id"`
	PaymentID string `bson:"payment_id"`
	UserID    string `bson:"user_id"`
	Credits   int    `bson:"credits"`
	CreatedAt int64  `bson:"created_at"`
}

func toPurchaseModel(p *models.Purchase) *purchaseModel {
	return &purchaseModel{
		OrderID:   p.OrderID,
		PaymentID: p.PaymentID,
		UserID:    p.UserID,
		Credits:   p.Credits,
		CreatedAt: p.CreatedAt,
	}
}
