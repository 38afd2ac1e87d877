package attribute

import "errors"

// ErrAlreadyDeclared is returned by DeclareArray/DeclareObject when name
// is already registered with a descriptor that differs from the one
// requested. Per spec.md §4.4, declaring with an identical descriptor
// is a no-op, not an error.
var ErrAlreadyDeclared = errors.New("attribute: already declared with a different descriptor")

// ErrNotFound is returned when looking up a name that was never declared.
var ErrNotFound = errors.New("attribute: not declared")

// ErrNoData is returned by Read/Latest when the attribute has never
// been written to, or when the requested range holds no published
// entry (e.g. ReadFrom with fromIdx >= Count()).
var ErrNoData = errors.New("attribute: no data written yet")

// ErrPayloadTooLarge is returned by ObjectAttribute.Write when a value
// would serialize past InlineSizeThreshold (object.go). Write takes no
// out-of-band option; such a value is rejected, not stored.
var ErrPayloadTooLarge = errors.New("attribute: object payload exceeds inline size threshold")
