package arena

// Rules groups the gameplay constants shared by movement, collision, food and bots.
type Rules struct {
	// CollisionThreshold is the axis-wise distance at which snake points touch.
	CollisionThreshold float64
	// FoodThreshold is the axis-wise distance at which a head eats food.
	FoodThreshold float64
	// SelfSkip is the number of head-adjacent segments ignored by self collision.
	SelfSkip int
	// Speed is expressed in arena units per second.
	Speed          float64
	StartLength    int
	SegmentSpacing float64
	Growth         int

	FoodValue    int
	FoodCap      int
	FoodInset    float64
	FoodPadding  float64
	FoodAttempts int

	KillBonus  int
	SpawnInset float64

	WallProbe  float64
	SnakeProbe float64
	SafeProbe  float64
}

// DefaultRules returns the tuning the game ships with.
func DefaultRules() Rules {
	return Rules{
		CollisionThreshold: 8,
		FoodThreshold:      15,
		SelfSkip:           15,
		Speed:              80,
		StartLength:        5,
		SegmentSpacing:     10,
		Growth:             3,
		FoodValue:          5,
		FoodCap:            5,
		FoodInset:          30,
		FoodPadding:        10,
		FoodAttempts:       20,
		KillBonus:          10,
		SpawnInset:         50,
		WallProbe:          40,
		SnakeProbe:         30,
		SafeProbe:          30,
	}
}
