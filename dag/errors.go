package dag

import (
	"errors"

	"tangle-node/models"
)

var (
	ErrInvalidTrustScore   = models.ErrInvalidTrustScore
	ErrUnresolvedParent    = errors.New("parent transaction cannot be resolved")
	ErrDuplicateAttachment = errors.New("transaction is already attached")
	ErrCycleDetected       = errors.New("cycle detected in transaction DAG")
	ErrInterruptedWait     = errors.New("trust chain consensus wait interrupted")
	ErrAlreadyInitialized  = errors.New("cluster is already initialized")
	ErrNotInitialized      = errors.New("cluster is not initialized")
)
