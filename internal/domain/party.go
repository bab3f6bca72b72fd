package domain

// Buyer — покупатель.
type Buyer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Seller — продавец (магазин).
type Seller struct {
	ID     string `json:"id"`
	UserID string `json:"userId,omitempty"`
	Name   string `json:"name"`
}

// Address — адрес доставки покупателя.
type Address struct {
	ID            string `json:"id"`
	UserID        string `json:"userId"`
	RecipientName string `json:"recipientName,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Province      string `json:"province"`
	District      string `json:"district"`
	Ward          string `json:"ward"`
	Street        string `json:"street,omitempty"`
}
