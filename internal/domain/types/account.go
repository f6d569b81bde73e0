package types

// Profile remembers which local account the CLI acts as by default.
type Profile struct {
	Address Address `json:"address"`
	Backend string  `json:"backend"`
}
