package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Categories(ctx context.Context) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, display_name, COALESCE(description, '')
		FROM categories ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cats []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.Name, &c.DisplayName, &c.Description); err != nil {
			return nil, err
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

func (s *SQLiteStore) CategoryItems(ctx context.Context, name string) ([]string, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM categories WHERE name = ?`, name).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT item FROM category_items WHERE category = ? ORDER BY item
	`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []string
	for rows.Next() {
		var it string
		if err := rows.Scan(&it); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *SQLiteStore) CreateGame(ctx context.Context, g GameRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO games (id, lobby_code, category, best_of, phase, round)
		VALUES (?, ?, ?, ?, ?, ?)
	`, g.ID, g.LobbyCode, g.Category, g.BestOf, g.Phase, g.Round)
	return err
}

const gameColumns = `
	id, lobby_code, category, best_of, phase, round, high_bid,
	COALESCE(high_bidder_id, ''), COALESCE(lister_id, ''), list_count,
	phase_ends_at, created_at, ended_at
`

func scanGame(row interface{ Scan(...any) error }) (GameRecord, error) {
	var g GameRecord
	var phaseEndsAt, endedAt sql.NullString
	err := row.Scan(&g.ID, &g.LobbyCode, &g.Category, &g.BestOf, &g.Phase,
		&g.Round, &g.HighBid, &g.HighBidderID, &g.ListerID, &g.ListCount,
		&phaseEndsAt, &g.CreatedAt, &endedAt)
	if phaseEndsAt.Valid {
		g.PhaseEndsAt = &phaseEndsAt.String
	}
	if endedAt.Valid {
		g.EndedAt = &endedAt.String
	}
	return g, err
}

func (s *SQLiteStore) GameByID(ctx context.Context, id string) (GameRecord, error) {
	g, err := scanGame(s.db.QueryRowContext(ctx,
		`SELECT `+gameColumns+` FROM games WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return g, ErrNotFound
	}
	return g, err
}

func (s *SQLiteStore) GameByCode(ctx context.Context, code string) (GameRecord, error) {
	g, err := scanGame(s.db.QueryRowContext(ctx,
		`SELECT `+gameColumns+` FROM games WHERE lobby_code = ?`, code))
	if errors.Is(err, sql.ErrNoRows) {
		return g, ErrNotFound
	}
	return g, err
}

// OpenLobbies returns lobbies still waiting for a second player. Empty
// category means any.
func (s *SQLiteStore) OpenLobbies(ctx context.Context, category string) ([]GameRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+gameColumns+` FROM games
		WHERE phase = 'lobby'
			AND (? = '' OR category = ?)
			AND (SELECT COUNT(*) FROM players p WHERE p.game_id = games.id) < 2
		ORDER BY created_at
	`, category, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var games []GameRecord
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

// OpenLobbyWithPlayers returns the oldest open lobby that already has
// someone waiting, so join-random pairs players up before spawning new
// lobbies.
func (s *SQLiteStore) OpenLobbyWithPlayers(ctx context.Context, category string) (GameRecord, error) {
	g, err := scanGame(s.db.QueryRowContext(ctx, `
		SELECT `+gameColumns+` FROM games
		WHERE phase = 'lobby'
			AND (? = '' OR category = ?)
			AND (SELECT COUNT(*) FROM players p WHERE p.game_id = games.id) = 1
		ORDER BY created_at
		LIMIT 1
	`, category, category))
	if errors.Is(err, sql.ErrNoRows) {
		return g, ErrNotFound
	}
	return g, err
}

func (s *SQLiteStore) SaveGameState(ctx context.Context, g GameRecord) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE games SET
			phase = ?, round = ?, best_of = ?, high_bid = ?,
			high_bidder_id = NULLIF(?, ''), lister_id = NULLIF(?, ''),
			list_count = ?, phase_ends_at = ?
		WHERE id = ?
	`, g.Phase, g.Round, g.BestOf, g.HighBid, g.HighBidderID, g.ListerID,
		g.ListCount, g.PhaseEndsAt, g.ID)
	return err
}

func (s *SQLiteStore) AddPlayer(ctx context.Context, p PlayerRecord) error {
	connected := 0
	if p.Connected {
		connected = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO players (id, game_id, user_id, name, connected, score)
		VALUES (?, ?, NULLIF(?, ''), ?, ?, ?)
	`, p.ID, p.GameID, p.UserID, p.Name, connected, p.Score)
	return err
}

func (s *SQLiteStore) GamePlayers(ctx context.Context, gameID string) ([]PlayerRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, game_id, COALESCE(user_id, ''), name, connected, score, joined_at
		FROM players WHERE game_id = ? ORDER BY joined_at
	`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var players []PlayerRecord
	for rows.Next() {
		var p PlayerRecord
		var connected int
		if err := rows.Scan(&p.ID, &p.GameID, &p.UserID, &p.Name, &connected, &p.Score, &p.JoinedAt); err != nil {
			return nil, err
		}
		p.Connected = connected != 0
		players = append(players, p)
	}
	return players, rows.Err()
}

func (s *SQLiteStore) SetPlayerConnected(ctx context.Context, playerID string, connected bool) error {
	v := 0
	if connected {
		v = 1
	}
	_, err := s.db.ExecContext(ctx, `UPDATE players SET connected = ? WHERE id = ?`, v, playerID)
	return err
}

func (s *SQLiteStore) UpdateScores(ctx context.Context, gameID string, scores map[string]int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for playerID, score := range scores {
		if _, err := tx.ExecContext(ctx, `
			UPDATE players SET score = ? WHERE id = ? AND game_id = ?
		`, score, playerID, gameID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) AddUsedItem(ctx context.Context, gameID, item string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO used_items (game_id, item) VALUES (?, ?)
	`, gameID, item)
	return err
}

func (s *SQLiteStore) UsedItems(ctx context.Context, gameID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT item FROM used_items WHERE game_id = ?`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []string
	for rows.Next() {
		var it string
		if err := rows.Scan(&it); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *SQLiteStore) ClearUsedItems(ctx context.Context, gameID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM used_items WHERE game_id = ?`, gameID)
	return err
}

// FinishMatch closes the game row, writes per-player history, and folds
// results into account stats and achievements, all inside one transaction.
func (s *SQLiteStore) FinishMatch(ctx context.Context, res MatchResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE games SET phase = 'ended', phase_ends_at = NULL,
			ended_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		WHERE id = ?
	`, res.GameID); err != nil {
		return fmt.Errorf("closing game: %w", err)
	}

	for _, e := range res.Entries {
		won := 0
		if e.Won {
			won = 1
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO game_results (id, game_id, player_id, user_id, category, score, won)
			VALUES (?, ?, ?, NULLIF(?, ''), ?, ?, ?)
		`, uuid.NewString(), res.GameID, e.PlayerID, e.UserID, res.Category, e.Score, won); err != nil {
			return fmt.Errorf("recording result: %w", err)
		}

		if e.UserID == "" {
			continue
		}
		if err := s.applyUserResult(ctx, tx, e, res.Category); err != nil {
			return fmt.Errorf("updating stats for %s: %w", e.UserID, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) applyUserResult(ctx context.Context, tx *sql.Tx, e ResultEntry, category string) error {
	wonInc := 0
	if e.Won {
		wonInc = 1
	}

	// Streak resets on a loss, extends on a win; longest tracks the max.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO user_stats (user_id, total_games, games_won, total_score, current_streak, longest_streak)
		VALUES (?, 1, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			total_games = total_games + 1,
			games_won = games_won + excluded.games_won,
			total_score = total_score + excluded.total_score,
			current_streak = CASE WHEN excluded.games_won = 1 THEN current_streak + 1 ELSE 0 END,
			longest_streak = MAX(longest_streak,
				CASE WHEN excluded.games_won = 1 THEN current_streak + 1 ELSE 0 END)
	`, e.UserID, wonInc, e.Score, wonInc, wonInc); err != nil {
		return err
	}

	// Favorite category is whichever the user has finished most games in.
	if _, err := tx.ExecContext(ctx, `
		UPDATE user_stats SET favorite_category = (
			SELECT category FROM game_results
			WHERE user_id = ?
			GROUP BY category
			ORDER BY COUNT(*) DESC, category
			LIMIT 1
		) WHERE user_id = ?
	`, e.UserID, e.UserID); err != nil {
		return err
	}

	var stats struct{ gamesWon, currentStreak int }
	if err := tx.QueryRowContext(ctx, `
		SELECT games_won, current_streak FROM user_stats WHERE user_id = ?
	`, e.UserID).Scan(&stats.gamesWon, &stats.currentStreak); err != nil {
		return err
	}

	var codes []string
	if e.Won && stats.gamesWon >= 1 {
		codes = append(codes, "first_win")
	}
	if stats.currentStreak >= 3 {
		codes = append(codes, "streak_3")
	}
	if stats.currentStreak >= 5 {
		codes = append(codes, "streak_5")
	}
	if e.PerfectList {
		codes = append(codes, "perfect_list")
	}
	if e.BestBidWon >= 10 {
		codes = append(codes, "bid_master")
	}

	for _, code := range codes {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO achievements (user_id, code) VALUES (?, ?)
		`, e.UserID, code); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) GameStats(ctx context.Context, gameID string) (GameStatsResponse, error) {
	var resp GameStatsResponse
	g, err := s.GameByID(ctx, gameID)
	if err != nil {
		return resp, err
	}

	players, err := s.GamePlayers(ctx, gameID)
	if err != nil {
		return resp, err
	}

	used, err := s.UsedItems(ctx, gameID)
	if err != nil {
		return resp, err
	}

	resp = GameStatsResponse{
		GameID:    g.ID,
		LobbyCode: g.LobbyCode,
		Category:  g.Category,
		Phase:     g.Phase,
		Round:     g.Round,
		BestOf:    g.BestOf,
		CreatedAt: g.CreatedAt,
		EndedAt:   g.EndedAt,
		Players:   make([]PlayerStats, 0, len(players)),
		UsedItems: used,
	}
	for _, p := range players {
		resp.Players = append(resp.Players, PlayerStats{
			ID:        p.ID,
			Name:      p.Name,
			Score:     p.Score,
			Connected: p.Connected,
		})
	}
	if resp.UsedItems == nil {
		resp.UsedItems = []string{}
	}
	return resp, nil
}

func (s *SQLiteStore) PlayerHistory(ctx context.Context, playerID string) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT game_id, category, score, won, finished_at
		FROM game_results
		WHERE player_id = ?
		ORDER BY finished_at DESC
	`, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []HistoryEntry{}
	for rows.Next() {
		var h HistoryEntry
		var won int
		if err := rows.Scan(&h.GameID, &h.Category, &h.Score, &won, &h.FinishedAt); err != nil {
			return nil, err
		}
		h.Won = won != 0
		entries = append(entries, h)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) UserStats(ctx context.Context, userID string) (UserStats, error) {
	var st UserStats
	var favorite sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT total_games, games_won, total_score, current_streak, longest_streak, favorite_category
		FROM user_stats WHERE user_id = ?
	`, userID).Scan(&st.TotalGames, &st.GamesWon, &st.TotalScore,
		&st.CurrentStreak, &st.LongestStreak, &favorite)
	if errors.Is(err, sql.ErrNoRows) {
		// A user with no finished games has empty stats, not a 404.
		return UserStats{Achievements: []Achievement{}}, nil
	}
	if err != nil {
		return st, err
	}
	if favorite.Valid {
		st.FavoriteCategory = favorite.String
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT code, earned_at FROM achievements WHERE user_id = ? ORDER BY earned_at
	`, userID)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	st.Achievements = []Achievement{}
	for rows.Next() {
		var a Achievement
		if err := rows.Scan(&a.Code, &a.EarnedAt); err != nil {
			return st, err
		}
		st.Achievements = append(st.Achievements, a)
	}
	return st, rows.Err()
}

func (s *SQLiteStore) CreateUser(ctx context.Context, email, name, passwordHash string) (UserRecord, error) {
	var u UserRecord
	u.ID = uuid.NewString()
	u.Email = email
	u.Name = name
	u.PasswordHash = passwordHash
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, email, name, password_hash)
		VALUES (?, ?, ?, ?)
		RETURNING created_at
	`, u.ID, email, name, passwordHash).Scan(&u.CreatedAt)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return UserRecord{}, ErrEmailTaken
	}
	if err != nil {
		return UserRecord{}, err
	}
	return u, nil
}

func (s *SQLiteStore) UserByEmail(ctx context.Context, email string) (UserRecord, error) {
	var u UserRecord
	var lastLogin sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, password_hash, created_at, last_login
		FROM users WHERE email = ?
	`, email).Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.CreatedAt, &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrNotFound
	}
	if lastLogin.Valid {
		u.LastLogin = &lastLogin.String
	}
	return u, err
}

func (s *SQLiteStore) CreateSession(ctx context.Context, userID string) (string, error) {
	var sessionID string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO sessions (id, user_id)
		VALUES (lower(hex(randomblob(16))), ?)
		RETURNING id
	`, userID).Scan(&sessionID)
	return sessionID, err
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	return err
}

func (s *SQLiteStore) UserFromSession(ctx context.Context, sessionID string) (userSession, error) {
	var sess userSession
	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.email, u.name
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.id = ?
	`, sessionID).Scan(&sess.UserID, &sess.Email, &sess.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return sess, ErrNotFound
	}
	return sess, err
}

func (s *SQLiteStore) TouchLastLogin(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET last_login = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		WHERE id = ?
	`, userID)
	return err
}
