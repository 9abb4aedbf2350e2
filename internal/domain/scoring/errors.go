package scoring

import "errors"

// ErrNonFiniteComposite is returned when a composite cannot be represented.
var ErrNonFiniteComposite = errors.New("composite is not finite")
