package models

// All lists every persisted model in dependency order.
func All() []any {
	return []any{
		&BatchInventory{},
		&ProductSerial{},
		&Order{},
		&OrderDetail{},
		&ExportInventory{},
		&Transaction{},
		&Wallet{},
		&WalletTransaction{},
		&BankAccount{},
		&Cashout{},
		&Payout{},
		&OutboxEvent{},
		&OutboxDLQ{},
		&ReconciliationItem{},
	}
}
