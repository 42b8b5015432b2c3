package types

// CodeTypeOK is the only success code. The application defines the
// rejection codes above it.
const CodeTypeOK uint32 = 0

func (r ResponseCheckTx) IsOK() bool  { return r.Code == CodeTypeOK }
func (r ResponseCheckTx) IsErr() bool { return !r.IsOK() }

func (r ResponseDeliverTx) IsOK() bool  { return r.Code == CodeTypeOK }
func (r ResponseDeliverTx) IsErr() bool { return !r.IsOK() }

func (r ResponseQuery) IsOK() bool { return r.Code == CodeTypeOK }
