package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/sarida/backend/internal/domain"
	"github.com/sarida/backend/internal/observability"
)

var (
	// ErrChatDisabled is returned when no language model is configured.
	ErrChatDisabled = errors.New("chat disabled: configure GEMINI_API_KEY")
	// ErrEmptyQuestion is returned for blank chat messages.
	ErrEmptyQuestion = errors.New("empty question")
)

const (
	chatGreeting = "Hola 👋 Soy tu asistente climático basado en Gemini. " +
		"Puedo ayudarte a entender este dashboard y las posibles sequías en Riohacha."
	chatFallback = "No pude obtener respuesta de Gemini. Detalle técnico: %v"
)

// ChatSession is the history of one visitor's conversation.
type ChatSession struct {
	ID string

	mu       sync.Mutex
	messages []domain.ChatMessage
}

// History returns a copy of the session's messages in order.
func (s *ChatSession) History() []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *ChatSession) append(msgs ...domain.ChatMessage) {
	s.mu.Lock()
	s.messages = append(s.messages, msgs...)
	s.mu.Unlock()
}

// Session store limits used unless WithLimits overrides them.
const (
	DefaultMaxSessions    = 1000
	DefaultSessionIdleTTL = 24 * time.Hour
)

// SessionStore owns every chat session, keyed by a random UUID. Sessions idle
// for longer than the TTL expire, and once the store is full the least
// recently used session is evicted to make room.
type SessionStore struct {
	clock       clockwork.Clock
	maxSessions int
	idleTTL     time.Duration

	mu       sync.Mutex
	sessions map[string]*ChatSession
	lastSeen map[string]time.Time
}

// NewSessionStore creates an empty store with the default limits.
func NewSessionStore(clock clockwork.Clock) *SessionStore {
	return &SessionStore{
		clock:       clock,
		maxSessions: DefaultMaxSessions,
		idleTTL:     DefaultSessionIdleTTL,
		sessions:    make(map[string]*ChatSession),
		lastSeen:    make(map[string]time.Time),
	}
}

// WithLimits sets the session cap and idle TTL. Zero disables either limit.
func (st *SessionStore) WithLimits(maxSessions int, idleTTL time.Duration) *SessionStore {
	st.mu.Lock()
	st.maxSessions = maxSessions
	st.idleTTL = idleTTL
	st.mu.Unlock()
	return st
}

// Get returns the session for id, if it exists and has not expired.
func (st *SessionStore) Get(id string) (*ChatSession, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.touch(id, st.clock.Now())
}

// GetOrCreate returns the session for id, or a new session seeded with the
// assistant greeting when id is empty, unknown or expired.
func (st *SessionStore) GetOrCreate(id string) *ChatSession {
	st.mu.Lock()
	defer st.mu.Unlock()
	now := st.clock.Now()
	if s, ok := st.touch(id, now); ok {
		return s
	}

	st.expire(now)
	if st.maxSessions > 0 && len(st.sessions) >= st.maxSessions {
		st.evictOldest()
	}

	s := &ChatSession{
		ID: uuid.NewString(),
		messages: []domain.ChatMessage{{
			Role:    domain.RoleAssistant,
			Content: chatGreeting,
			At:      now,
		}},
	}
	st.sessions[s.ID] = s
	st.lastSeen[s.ID] = now
	return s
}

// Len returns the number of stored sessions.
func (st *SessionStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// touch must be called with st.mu held.
func (st *SessionStore) touch(id string, now time.Time) (*ChatSession, bool) {
	s, ok := st.sessions[id]
	if !ok {
		return nil, false
	}
	if st.idle(id, now) {
		st.remove(id)
		return nil, false
	}
	st.lastSeen[id] = now
	return s, true
}

func (st *SessionStore) idle(id string, now time.Time) bool {
	return st.idleTTL > 0 && now.Sub(st.lastSeen[id]) > st.idleTTL
}

func (st *SessionStore) expire(now time.Time) {
	for id := range st.sessions {
		if st.idle(id, now) {
			st.remove(id)
		}
	}
}

func (st *SessionStore) evictOldest() {
	var oldest string
	var oldestAt time.Time
	for id, at := range st.lastSeen {
		if oldest == "" || at.Before(oldestAt) {
			oldest, oldestAt = id, at
		}
	}
	if oldest != "" {
		st.remove(oldest)
	}
}

func (st *SessionStore) remove(id string) {
	delete(st.sessions, id)
	delete(st.lastSeen, id)
}

// ChatService answers questions about the dashboard with a language model.
type ChatService struct {
	llm     domain.LanguageModel
	store   *SessionStore
	timeout time.Duration
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewChatService creates the assistant. A nil llm disables it.
func NewChatService(llm domain.LanguageModel, store *SessionStore, timeout time.Duration, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *ChatService {
	return &ChatService{
		llm:     llm,
		store:   store,
		timeout: timeout,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
	}
}

// Enabled reports whether a language model is configured.
func (s *ChatService) Enabled() bool {
	return s.llm != nil
}

// Session returns the session for id, creating one when needed.
func (s *ChatService) Session(id string) (*ChatSession, error) {
	if !s.Enabled() {
		return nil, ErrChatDisabled
	}
	return s.store.GetOrCreate(id), nil
}

// Ask appends question to the session and returns the assistant reply. A
// language model failure is not an error: the reply then carries the
// fallback text with the technical detail.
func (s *ChatService) Ask(ctx context.Context, sessionID, question string, cctx domain.ChatContext) (*ChatSession, domain.ChatMessage, error) {
	if !s.Enabled() {
		return nil, domain.ChatMessage{}, ErrChatDisabled
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.ChatMessage{}, ErrEmptyQuestion
	}

	session := s.store.GetOrCreate(sessionID)
	session.append(domain.ChatMessage{Role: domain.RoleUser, Content: question, At: s.clock.Now()})

	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := s.clock.Now()
	text, err := s.llm.Generate(callCtx, BuildPrompt(cctx, question))
	if s.metrics != nil {
		s.metrics.ChatDuration.Observe(s.clock.Since(start).Seconds())
	}

	outcome := "success"
	if err != nil {
		outcome = "fallback"
		s.logger.Warn("language model call failed", "session", session.ID, "error", err)
		text = fmt.Sprintf(chatFallback, err)
	}
	if s.metrics != nil {
		s.metrics.ChatRequests.WithLabelValues(outcome).Inc()
	}

	reply := domain.ChatMessage{Role: domain.RoleAssistant, Content: text, At: s.clock.Now()}
	session.append(reply)
	return session, reply, nil
}

const assistantInstructions = `Eres un asistente experto en clima y sequías en Riohacha.
Responde en español, claro y sin inventar datos.

CONCEPTOS
Sequía meteorológica: ausencia prolongada o escasez acusada de precipitación.
Sequía hidrológica (déficit hídrico): periodo anormalmente seco, lo bastante largo para reducir el caudal de los ríos, el nivel de los lagos, la humedad del suelo y las aguas subterráneas por debajo de lo normal.
Cambio climático: alteración significativa y persistente de las propiedades estadísticas del clima durante periodos largos, atribuida directa o indirectamente a la actividad humana (CMNUCC). Intensifica sequías y lluvias extremas, sobre todo en zonas ecuatoriales y tropicales, y se combina con El Niño y La Niña.

EFECTOS E IMPACTOS DE LAS SEQUÍAS
- Deshidratación de personas, animales y cultivos.
- Afectación del abastecimiento alimentario.
- Incendios forestales por baja humedad, radiación fuerte y altas temperaturas.
- Escasez de agua en acueductos y pozos, problemas de higiene y enfermedades, especialmente en niñas, niños y adolescentes.
- Golpes de calor e insolación.
- Desplazamiento de población rural por falta de agua para consumo y agricultura.

INDICADORES DEL DASHBOARD
SPI: Índice Estandarizado de Precipitación, calculado sobre la precipitación acumulada en 1, 3, 6 y 12 meses.
SPEI: Índice Estandarizado de Precipitación y Evapotranspiración (Vicente-Serrano et al., 2010). Usa el balance hídrico P - ETo ajustado a una distribución log-logística y normalizado. Valores negativos indican condiciones más secas que lo normal.
Mann-Kendall: prueba de tendencia monótona; la pendiente de Sen mide la magnitud del cambio por mes.

ESTILO
Tono educativo, confiable y claro, NO TÉCNICO, para funcionarios y población civil.
Busca primero la respuesta en la información suministrada. Si necesitas fuentes externas prioriza IDEAM, Ministerio de Ambiente, Ministerio de Agricultura, Corpoguajira, Cruz Roja y FAO.
Responde de forma sucinta, sin información innecesaria, y puedes cerrar sugiriendo una pregunta de seguimiento.`

// BuildPrompt assembles the instructions, the dashboard context and the
// user's question into a single prompt.
func BuildPrompt(cctx domain.ChatContext, question string) string {
	var b strings.Builder
	b.WriteString(assistantInstructions)
	b.WriteString("\n\nContexto del dashboard:\n")
	if cctx.Probability != nil {
		fmt.Fprintf(&b, "Probabilidad de sequía: %.1f%%. ", *cctx.Probability)
	} else {
		b.WriteString("Probabilidad de sequía: no disponible. ")
	}
	if cctx.StartYear > 0 && cctx.EndYear > 0 {
		fmt.Fprintf(&b, "Años visibles: %d-%d. ", cctx.StartYear, cctx.EndYear)
	}
	if cctx.Variable != "" {
		fmt.Fprintf(&b, "Variable seleccionada: %s.", cctx.Variable)
	}
	b.WriteString("\n\nPregunta del usuario:\n")
	b.WriteString(question)
	return b.String()
}
