// Package memstore is an in-process Store used by tests and by the
// memory store mode.
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/karthiknish/aroosi-sub016/pkg/apperr"
	"github.com/karthiknish/aroosi-sub016/pkg/models"
	"github.com/karthiknish/aroosi-sub016/pkg/store"
)

var errInjected = errors.New("injected failure")

type msgLoc struct {
	convID string
	seq    uint64
}

type Store struct {
	mu sync.RWMutex

	convs       map[string]*models.Conversation
	bySet       map[string]string
	userConvs   map[string]map[string]struct{}
	messages    map[string][]*models.Message // conv -> index seq-1
	locators    map[string]msgLoc
	idempotency map[string]store.IdempotencyRecord
	reactions   map[string]map[string]models.Reaction // msg -> user\x00emoji
	notifs      map[string]map[string]*models.Notification
	reports     map[string]*models.Report
	appeals     map[string][]*models.Appeal
	openAppeals map[string]string
	views       map[string][]models.ProfileView
	answers     map[string]map[string]models.IcebreakerAnswer

	unavailable bool
	closed      bool
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		convs:       make(map[string]*models.Conversation),
		bySet:       make(map[string]string),
		userConvs:   make(map[string]map[string]struct{}),
		messages:    make(map[string][]*models.Message),
		locators:    make(map[string]msgLoc),
		idempotency: make(map[string]store.IdempotencyRecord),
		reactions:   make(map[string]map[string]models.Reaction),
		notifs:      make(map[string]map[string]*models.Notification),
		reports:     make(map[string]*models.Report),
		appeals:     make(map[string][]*models.Appeal),
		openAppeals: make(map[string]string),
		views:       make(map[string][]models.ProfileView),
		answers:     make(map[string]map[string]models.IcebreakerAnswer),
	}
}

// SetUnavailable makes every operation fail with a transient store error
// until cleared.
func (s *Store) SetUnavailable(down bool) {
	s.mu.Lock()
	s.unavailable = down
	s.mu.Unlock()
}

func (s *Store) check(op string) error {
	if s.closed {
		return store.Unavailable(op, errors.New("store closed"))
	}
	if s.unavailable {
		return store.Unavailable(op, errInjected)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.check("ping")
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *Store) CreateConversation(ctx context.Context, c *models.Conversation) (*models.Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("create_conversation"); err != nil {
		return nil, false, err
	}
	setKey := models.ParticipantSetKey(c.Participants)
	if id, ok := s.bySet[setKey]; ok {
		return s.convs[id].Clone(), false, nil
	}
	if _, ok := s.convs[c.ID]; ok {
		return nil, false, apperr.Conflict("conversation id already exists")
	}
	cp := c.Clone()
	cp.Participants = models.NormalizeParticipants(cp.Participants)
	s.convs[cp.ID] = cp
	s.bySet[setKey] = cp.ID
	for _, p := range cp.Participants {
		if s.userConvs[p] == nil {
			s.userConvs[p] = make(map[string]struct{})
		}
		s.userConvs[p][cp.ID] = struct{}{}
	}
	return cp.Clone(), true, nil
}

func (s *Store) GetConversation(ctx context.Context, convID string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check("get_conversation"); err != nil {
		return nil, err
	}
	c, ok := s.convs[convID]
	if !ok {
		return nil, apperr.ErrConversationNotFound
	}
	return c.Clone(), nil
}

func (s *Store) ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check("list_conversations"); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(s.userConvs[userID]))
	for id := range s.userConvs[userID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*models.Conversation, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.convs[id].Clone())
	}
	return out, nil
}

func (s *Store) UpdateCursor(ctx context.Context, convID, userID string, cur models.Cursor) (models.Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("update_cursor"); err != nil {
		return models.Cursor{}, err
	}
	c, ok := s.convs[convID]
	if !ok {
		return models.Cursor{}, apperr.ErrConversationNotFound
	}
	merged := store.MergeCursor(c.Cursor(userID), cur)
	if c.Cursors == nil {
		c.Cursors = make(map[string]models.Cursor)
	}
	c.Cursors[userID] = merged
	return merged, nil
}

func idemKey(convID, senderID, token string) string {
	return convID + "\x00" + senderID + "\x00" + token
}

func (s *Store) AppendMessage(ctx context.Context, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("append_message"); err != nil {
		return err
	}
	c, ok := s.convs[m.ConversationID]
	if !ok {
		return apperr.ErrConversationNotFound
	}
	if m.Sequence != c.LastSequence+1 {
		return store.SequenceConflict(c.ID, c.LastSequence, m.Sequence)
	}
	if _, dup := s.locators[m.ID]; dup {
		return apperr.Conflict("message id already exists")
	}
	s.messages[c.ID] = append(s.messages[c.ID], m.Clone())
	s.locators[m.ID] = msgLoc{convID: c.ID, seq: m.Sequence}
	c.LastSequence = m.Sequence
	c.UpdatedTS = m.CreatedTS
	if m.IdempotencyKey != "" {
		s.idempotency[idemKey(c.ID, m.SenderID, m.IdempotencyKey)] = store.IdempotencyRecord{MessageID: m.ID, CreatedTS: m.CreatedTS}
	}
	return nil
}

func (s *Store) lookupMessage(msgID string) (*models.Message, bool) {
	loc, ok := s.locators[msgID]
	if !ok {
		return nil, false
	}
	return s.messages[loc.convID][loc.seq-1], true
}

func (s *Store) GetMessage(ctx context.Context, msgID string) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check("get_message"); err != nil {
		return nil, err
	}
	m, ok := s.lookupMessage(msgID)
	if !ok {
		return nil, apperr.ErrMessageNotFound
	}
	return m.Clone(), nil
}

func (s *Store) ListMessages(ctx context.Context, convID string, after uint64, limit int) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check("list_messages"); err != nil {
		return nil, err
	}
	if _, ok := s.convs[convID]; !ok {
		return nil, apperr.ErrConversationNotFound
	}
	all := s.messages[convID]
	if after >= uint64(len(all)) {
		return nil, nil
	}
	tail := all[after:]
	if limit > 0 && len(tail) > limit {
		tail = tail[:limit]
	}
	out := make([]*models.Message, len(tail))
	for i, m := range tail {
		out[i] = m.Clone()
	}
	return out, nil
}

func (s *Store) UpdateMessageStatus(ctx context.Context, msgID string, status models.DeliveryStatus) (*models.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("update_message_status"); err != nil {
		return nil, false, err
	}
	m, ok := s.lookupMessage(msgID)
	if !ok {
		return nil, false, apperr.ErrMessageNotFound
	}
	if !m.Status.Advances(status) {
		return m.Clone(), false, nil
	}
	m.Status = status
	return m.Clone(), true, nil
}

func (s *Store) LookupIdempotency(ctx context.Context, convID, senderID, token string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check("lookup_idempotency"); err != nil {
		return "", false, err
	}
	rec, ok := s.idempotency[idemKey(convID, senderID, token)]
	return rec.MessageID, ok, nil
}

func (s *Store) PurgeIdempotency(ctx context.Context, cutoff int64, dryRun bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("purge_idempotency"); err != nil {
		return 0, err
	}
	n := 0
	for k, rec := range s.idempotency {
		if rec.CreatedTS < cutoff {
			n++
			if !dryRun {
				delete(s.idempotency, k)
			}
		}
	}
	return n, nil
}

func reactionKey(userID, emoji string) string { return userID + "\x00" + emoji }

func (s *Store) HasReaction(ctx context.Context, msgID, userID, emoji string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check("has_reaction"); err != nil {
		return false, err
	}
	_, ok := s.reactions[msgID][reactionKey(userID, emoji)]
	return ok, nil
}

func (s *Store) PutReaction(ctx context.Context, r models.Reaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("put_reaction"); err != nil {
		return err
	}
	if s.reactions[r.MessageID] == nil {
		s.reactions[r.MessageID] = make(map[string]models.Reaction)
	}
	s.reactions[r.MessageID][reactionKey(r.UserID, r.Emoji)] = r
	return nil
}

func (s *Store) DeleteReaction(ctx context.Context, msgID, userID, emoji string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("delete_reaction"); err != nil {
		return err
	}
	delete(s.reactions[msgID], reactionKey(userID, emoji))
	return nil
}

func (s *Store) ListReactions(ctx context.Context, msgID string) ([]models.Reaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check("list_reactions"); err != nil {
		return nil, err
	}
	out := make([]models.Reaction, 0, len(s.reactions[msgID]))
	for _, r := range s.reactions[msgID] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].Emoji < out[j].Emoji
	})
	return out, nil
}

func (s *Store) PutNotification(ctx context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("put_notification"); err != nil {
		return err
	}
	if s.notifs[n.UserID] == nil {
		s.notifs[n.UserID] = make(map[string]*models.Notification)
	}
	cp := *n
	s.notifs[n.UserID][n.ID] = &cp
	return nil
}

func (s *Store) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check("list_notifications"); err != nil {
		return nil, err
	}
	out := make([]*models.Notification, 0, len(s.notifs[userID]))
	for _, n := range s.notifs[userID] {
		if unreadOnly && n.Read() {
			continue
		}
		cp := *n
		out = append(out, &cp)
	}
	// ids are time ordered
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkNotificationsRead(ctx context.Context, userID string, ids []string, ts int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("mark_notifications_read"); err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		rec, ok := s.notifs[userID][id]
		if !ok || rec.Read() {
			continue
		}
		rec.ReadTS = ts
		n++
	}
	return n, nil
}

func (s *Store) PurgeNotifications(ctx context.Context, cutoff int64, dryRun bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("purge_notifications"); err != nil {
		return 0, err
	}
	n := 0
	for _, byID := range s.notifs {
		for id, rec := range byID {
			if rec.Read() && rec.ReadTS < cutoff {
				n++
				if !dryRun {
					delete(byID, id)
				}
			}
		}
	}
	return n, nil
}

func (s *Store) PutReport(ctx context.Context, r *models.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("put_report"); err != nil {
		return err
	}
	cp := *r
	s.reports[r.ID] = &cp
	return nil
}

func appealKey(userID, actionID string) string { return userID + "\x00" + actionID }

func (s *Store) CreateAppeal(ctx context.Context, a *models.Appeal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("create_appeal"); err != nil {
		return err
	}
	k := appealKey(a.UserID, a.ActionID)
	if _, open := s.openAppeals[k]; open {
		return apperr.Conflict("an open appeal already exists for this action")
	}
	cp := *a
	s.appeals[a.UserID] = append(s.appeals[a.UserID], &cp)
	if a.Status == models.AppealOpen {
		s.openAppeals[k] = a.ID
	}
	return nil
}

func (s *Store) ListAppeals(ctx context.Context, userID string) ([]*models.Appeal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check("list_appeals"); err != nil {
		return nil, err
	}
	out := make([]*models.Appeal, 0, len(s.appeals[userID]))
	for _, a := range s.appeals[userID] {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) PutProfileView(ctx context.Context, v models.ProfileView) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("put_profile_view"); err != nil {
		return err
	}
	s.views[v.ProfileID] = append(s.views[v.ProfileID], v)
	return nil
}

func (s *Store) ListProfileViews(ctx context.Context, profileID string, limit int) ([]models.ProfileView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check("list_profile_views"); err != nil {
		return nil, err
	}
	out := append([]models.ProfileView(nil), s.views[profileID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ViewedTS > out[j].ViewedTS })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) PutIcebreakerAnswer(ctx context.Context, a models.IcebreakerAnswer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("put_icebreaker_answer"); err != nil {
		return err
	}
	if s.answers[a.UserID] == nil {
		s.answers[a.UserID] = make(map[string]models.IcebreakerAnswer)
	}
	s.answers[a.UserID][a.QuestionID] = a
	return nil
}

func (s *Store) ListIcebreakerAnswers(ctx context.Context, userID string) ([]models.IcebreakerAnswer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check("list_icebreaker_answers"); err != nil {
		return nil, err
	}
	out := make([]models.IcebreakerAnswer, 0, len(s.answers[userID]))
	for _, a := range s.answers[userID] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out, nil
}
