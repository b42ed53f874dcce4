// Package peers decides which device slots a device talks to.
package peers

// Resolver picks the single peer whose frame a requester sees.
type Resolver func(requester string, known []string) (string, bool)

// SetResolver picks every peer a sender's audio goes to.
type SetResolver func(sender string, known []string) []string

// FirstRemaining returns the first known id that is not the requester.
// With two devices this is the complement.
func FirstRemaining(requester string, known []string) (string, bool) {
	for _, id := range known {
		if id != requester {
			return id, true
		}
	}
	return "", false
}

func AllOthers(sender string, known []string) []string {
	out := make([]string, 0, len(known))
	for _, id := range known {
		if id != sender {
			out = append(out, id)
		}
	}
	return out
}

// Pair adapts a Resolver into a SetResolver with at most one peer.
func Pair(r Resolver) SetResolver {
	return func(sender string, known []string) []string {
		id, ok := r(sender, known)
		if !ok {
			return nil
		}
		return []string{id}
	}
}
