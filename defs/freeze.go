package defs

import "fmt"

// Freeze freezes the given defs as one atomic batch. Every type reference
// held by a member of the batch must resolve to a def that is either
// already frozen or also a member of the batch; this is what makes cyclic
// message graphs freezable, where freezing one def at a time could not be.
//
// Validation runs over the whole batch before any def is marked frozen, so
// a validation error leaves every member unfrozen and still mutable.
func Freeze(ds ...Def) error {
	if len(ds) == 0 {
		return nil
	}
	batch := make(map[Def]struct{}, len(ds))
	for _, d := range ds {
		if d == nil {
			return fmt.Errorf("cannot freeze nil def")
		}
		if d.Frozen() {
			return fmt.Errorf("def %s is already frozen", d.FullName())
		}
		batch[d] = struct{}{}
	}
	for _, d := range ds {
		if err := d.validate(batch); err != nil {
			return err
		}
	}
	for _, d := range ds {
		d.setFrozen()
	}
	return nil
}
