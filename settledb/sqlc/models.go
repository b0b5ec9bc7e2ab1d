package sqlc

// Transfer is a row of the transfers table.
type Transfer struct {
	ID             int64
	MessageID      []byte
	Sequence       int64
	SourceChain    int32
	TargetChain    int32
	Sender         []byte
	SourceAsset    []byte
	AmountIn       string
	Refunded       string
	BridgeAmount   string
	RelayerFee     string
	Recipient      []byte
	Payload        []byte
	Nonce          int64
	InitiationTime int64
}

// Settlement is a row of the settlements table.
type Settlement struct {
	ID           int64
	MessageID    []byte
	FromChain    int32
	Outcome      int16
	Recipient    []byte
	Asset        []byte
	Caller       []byte
	Amount       string
	ChangeAmount string
	Released     string
	FeePaid      string
	TradeError   string
	Emitter      []byte
	LogData      []byte
	SettleTime   int64
}
