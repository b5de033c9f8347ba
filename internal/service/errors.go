package service

import "errors"

// ErrInsufficientInventory возвращается, когда свободных единиц варианта
// меньше запрошенного количества
var ErrInsufficientInventory = errors.New("insufficient inventory for variant")

// ErrVariantMismatch возвращается, когда серийный номер принадлежит
// не тому варианту, который указал вызывающий
var ErrVariantMismatch = errors.New("serial number belongs to another variant")

// ErrOwnershipMismatch возвращается, когда резерв единицы принадлежит
// другому держателю
var ErrOwnershipMismatch = errors.New("hold belongs to another reference")

// ErrAssignmentMismatch возвращается, когда фактическое распределение
// серийных номеров не совпадает с ожидаемым
var ErrAssignmentMismatch = errors.New("serial number assignment mismatch")
