package event

const (
	NameGameStarted  Name = "game:started"
	NameTurnAdvanced Name = "game:turn"
	NameGameOver     Name = "game:over"
	NameGameSaved    Name = "game:saved"
	NameGameLoaded   Name = "game:loaded"
	NameAchievement  Name = "game:achievement"
)

var (
	GameStartedKey  = newKey[GameStarted](NameGameStarted)
	TurnAdvancedKey = newKey[TurnAdvanced](NameTurnAdvanced)
	GameOverKey     = newKey[GameOver](NameGameOver)
	GameSavedKey    = newKey[GameSaved](NameGameSaved)
	GameLoadedKey   = newKey[GameLoaded](NameGameLoaded)
	AchievementKey  = newKey[Achievement](NameAchievement)
)

// GameStarted is published when a new game begins.
type GameStarted struct {
	GameID       string
	Turn         int
	MaxTurns     int
	StartingCash float64
}

func (GameStarted) EventName() Name {
	return NameGameStarted
}

// TurnAdvanced is published before the market moves for a new turn.
type TurnAdvanced struct {
	Turn int
}

func (TurnAdvanced) EventName() Name {
	return NameTurnAdvanced
}

// GameOver is published when the last turn has been played.
type GameOver struct {
	GameID   string
	Turn     int
	NetWorth float64
}

func (GameOver) EventName() Name {
	return NameGameOver
}

// GameSaved is published after a snapshot has been written to the store.
type GameSaved struct {
	GameID string
	Key    string
}

func (GameSaved) EventName() Name {
	return NameGameSaved
}

// GameLoaded is published after a snapshot has been restored.
type GameLoaded struct {
	GameID string
	Turn   int
}

func (GameLoaded) EventName() Name {
	return NameGameLoaded
}

// Achievement is published once per unlocked achievement.
type Achievement struct {
	ID          string
	Title       string
	Description string
	Turn        int
}

func (Achievement) EventName() Name {
	return NameAchievement
}
