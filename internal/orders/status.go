package orders

type Status string

const (
	StatusPending        Status = "PENDING"
	StatusConfirmed      Status = "CONFIRMED"
	StatusOutForDelivery Status = "OUT_FOR_DELIVERY"
	StatusDelivered      Status = "DELIVERED"
	StatusCancelled      Status = "CANCELLED"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:        {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed:      {StatusOutForDelivery: true, StatusCancelled: true},
	StatusOutForDelivery: {StatusDelivered: true},
	StatusDelivered:      {},
	StatusCancelled:      {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	_, ok := validNext[st]
	return st, ok
}

func (s Status) Terminal() bool { return len(validNext[s]) == 0 }

type PaymentMode string

const (
	PaymentOnline PaymentMode = "online"
	PaymentCOD    PaymentMode = "cod"
)

func (m PaymentMode) Valid() bool { return m == PaymentOnline || m == PaymentCOD }

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)
