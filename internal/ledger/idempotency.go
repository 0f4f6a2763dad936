package ledger

// DuplicatePolicy selects what a duplicate idempotency token means to the
// caller. Top-up application hard-fails so approvers notice the replay;
// sale references silently return the prior outcome so retried jobs are
// harmless.
type DuplicatePolicy int

const (
	// FailOnDuplicate rejects a reused token with ErrAlreadyApplied.
	FailOnDuplicate DuplicatePolicy = iota
	// ReturnPriorOnDuplicate returns prior() for a reused token without
	// running the effect.
	ReturnPriorOnDuplicate
)

// ensureOnce runs effect at most once per idempotency token. seen reports
// whether the token was already consumed; it must be evaluated under the
// same locks as the effect so concurrent presenters of one token serialize.
// The durable guarantee comes from the unique constraint backing seen
// (topup_requests.idempotency_key via applied_at, transactions.reference);
// this helper only fixes the check-before-mutate ordering and the policy.
func ensureOnce(policy DuplicatePolicy, seen func() (bool, error), prior func() (int64, error), effect func() (int64, error)) (int64, error) {
	dup, err := seen()
	if err != nil {
		return 0, err
	}
	if dup {
		if policy == ReturnPriorOnDuplicate {
			return prior()
		}
		return 0, ErrAlreadyApplied
	}
	return effect()
}
