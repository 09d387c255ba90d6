package session

import "errors"

var (
	// ErrInvalidState gates validation while a suspense account is present.
	ErrInvalidState = errors.New("the working set still uses the suspense account")
	// ErrAlreadyReconciled rejects mutations on a reconciled statement line.
	ErrAlreadyReconciled = errors.New("statement line is already reconciled")
	// ErrSealedReconciled refuses reset on a hash-sealed reconciled entry;
	// the caller is redirected to the reconciliation view instead.
	ErrSealedReconciled = errors.New("entry is hash-sealed and reconciled; open the reconciliation view to undo the matching")
	// ErrSealedUnreconciled forbids reset on a hash-sealed unreconciled entry.
	ErrSealedUnreconciled = errors.New("entry is hash-sealed; reset is not allowed")
	// ErrZeroResidual refuses mounting a counterpart whose residual is zero.
	ErrZeroResidual = errors.New("counterpart has no residual left to reconcile")
	// ErrLineNotFound reports an unknown line index.
	ErrLineNotFound = errors.New("no line with this index")
	// ErrLineNotRemovable protects the liquidity and auto-balance lines.
	ErrLineNotRemovable = errors.New("this line cannot be removed")
	// ErrNotReconciled rejects reset/check operations on an open line.
	ErrNotReconciled = errors.New("statement line is not reconciled")
)
