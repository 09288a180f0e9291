package policy

// NewOrange charges the car always, capping total household+charger grid
// draw at 8000 W regardless of solar availability.
func NewOrange(t *Tunables, red *Red) *Generic {
	return NewGeneric(
		"orange", "sun-dim", "Always charge",
		"Charges at up to <max_grid_power/> W of total grid draw, solar or not.",
		8000.0, 0.0, t, red,
	)
}

// NewYellow charges only from what would otherwise be exported to the
// grid, additionally allowing battery discharge once it is above its
// floor.
func NewYellow(t *Tunables, red *Red) *Generic {
	return NewGeneric(
		"yellow", "sun", "Solar only",
		"Charges only from surplus solar and battery above its reserve floor.",
		0.0, 0.0, t, red,
	)
}

// NewGreen requires a substantial solar surplus (5000 W) before allowing
// any charger draw at all.
func NewGreen(t *Tunables, red *Red) *Generic {
	return NewGeneric(
		"green", "leaf", "Abundant solar only",
		"Charges only once solar output clears <min_solar_power/> W.",
		0.0, 5000.0, t, red,
	)
}
