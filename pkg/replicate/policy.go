package replicate

import "sort"

// StatusClass is the classification of one operation outcome.
type StatusClass int

const (
	Success StatusClass = iota
	NonRetryable
	Retryable
)

func (c StatusClass) String() string {
	switch c {
	case Success:
		return "success"
	case NonRetryable:
		return "non_retryable"
	case Retryable:
		return "retryable"
	default:
		return "unknown"
	}
}

// DefaultNonRetryableStatus is the "bad request" status the search engine returns
// for documents it will never accept.
const DefaultNonRetryableStatus = 400

// Policy decides which statuses are dead-lettered. The zero value treats only
// 400 as non-retryable.
type Policy struct {
	nonRetryable map[int]struct{}
}

// NewPolicy returns a policy whose non-retryable set is 400 plus statuses. A
// bad request never becomes retryable.
func NewPolicy(statuses ...int) Policy {
	if len(statuses) == 0 {
		return Policy{}
	}
	set := make(map[int]struct{}, len(statuses)+1)
	set[DefaultNonRetryableStatus] = struct{}{}
	for _, s := range statuses {
		set[s] = struct{}{}
	}
	return Policy{nonRetryable: set}
}

// Classify maps an item status to a class. 2xx is Success; 404 on a delete is
// Success because the document is already absent; statuses in the non-retryable
// set are NonRetryable; everything else is Retryable.
func (p Policy) Classify(kind OpKind, status int) StatusClass {
	switch {
	case status >= 200 && status < 300:
		return Success
	case status == 404 && kind == OpDelete:
		return Success
	case p.isNonRetryable(status):
		return NonRetryable
	default:
		return Retryable
	}
}

// NonRetryableStatuses returns the configured set in ascending order.
func (p Policy) NonRetryableStatuses() []int {
	if p.nonRetryable == nil {
		return []int{DefaultNonRetryableStatus}
	}
	out := make([]int, 0, len(p.nonRetryable))
	for s := range p.nonRetryable {
		out = append(out, s)
	}
	sort.Ints(out)
	return out
}

func (p Policy) isNonRetryable(status int) bool {
	if p.nonRetryable == nil {
		return status == DefaultNonRetryableStatus
	}
	_, ok := p.nonRetryable[status]
	return ok
}
