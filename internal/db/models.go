package db

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// Source is a configured or discovered content origin.
type Source struct {
	SourceID             string         `gorm:"column:source_id;primaryKey;type:varchar(100)" json:"source_id"`
	Name                 string         `gorm:"column:name;type:varchar(200);not null" json:"name"`
	Kind                 string         `gorm:"column:kind;type:varchar(20);not null" json:"kind"` // feed / api / scraper / universal
	URL                  string         `gorm:"column:url;type:text;not null" json:"url"`
	Language             *string        `gorm:"column:language;type:varchar(10)" json:"language,omitempty"`
	Categories           pq.StringArray `gorm:"column:categories;type:text[]" json:"categories,omitempty"`
	FetchIntervalMinutes int            `gorm:"column:fetch_interval_minutes;not null;default:30" json:"fetch_interval_minutes"`
	ParserConfig         datatypes.JSON `gorm:"column:parser_config;type:jsonb" json:"parser_config,omitempty"`
	Enabled              bool           `gorm:"column:enabled;not null;default:true" json:"enabled"`
	Priority             int            `gorm:"column:priority;not null;default:5" json:"priority"`
	LastFetchedAt        *time.Time     `gorm:"column:last_fetched_at;type:timestamptz" json:"last_fetched_at,omitempty"`
	HealthStatus         string         `gorm:"column:health_status;type:varchar(20);not null;default:healthy" json:"health_status"`
	Notes                *string        `gorm:"column:notes;type:text" json:"notes,omitempty"`
	CreatedAt            time.Time      `gorm:"column:created_at;type:timestamptz;not null" json:"created_at"`
}

func (Source) TableName() string { return "sources" }

// Article is one logical news item. The URL column carries the canonical
// form and is the global uniqueness anchor.
type Article struct {
	ID         string  `gorm:"column:id;primaryKey;type:varchar(36)" json:"id"`
	SourceID   string  `gorm:"column:source_id;type:varchar(100);not null;index" json:"source_id"`
	SourceName *string `gorm:"column:source_name;type:varchar(200)" json:"source_name,omitempty"`
	URL        string  `gorm:"column:url;type:text;not null;uniqueIndex" json:"url"`

	Title        string     `gorm:"column:title;type:text;not null" json:"title"`
	BodyText     *string    `gorm:"column:body_text;type:text" json:"body_text,omitempty"`
	BodyMarkdown *string    `gorm:"column:body_markdown;type:text" json:"body_markdown,omitempty"`
	Language     *string    `gorm:"column:language;type:varchar(10)" json:"language,omitempty"`
	PublishedAt  *time.Time `gorm:"column:published_at;type:timestamptz;index" json:"published_at,omitempty"`
	FetchedAt    time.Time  `gorm:"column:fetched_at;type:timestamptz;not null" json:"fetched_at"`

	SummaryEN *string `gorm:"column:summary_en;type:text" json:"summary_en,omitempty"`
	SummaryZH *string `gorm:"column:summary_zh;type:text" json:"summary_zh,omitempty"`

	TransportModes  pq.StringArray `gorm:"column:transport_modes;type:text[]" json:"transport_modes,omitempty"`
	PrimaryTopic    *string        `gorm:"column:primary_topic;type:varchar(100);index" json:"primary_topic,omitempty"`
	SecondaryTopics pq.StringArray `gorm:"column:secondary_topics;type:text[]" json:"secondary_topics,omitempty"`
	ContentType     *string        `gorm:"column:content_type;type:varchar(50)" json:"content_type,omitempty"`
	Regions         pq.StringArray `gorm:"column:regions;type:text[]" json:"regions,omitempty"`

	Entities datatypes.JSON `gorm:"column:entities;type:jsonb" json:"entities,omitempty"`

	Sentiment    *string        `gorm:"column:sentiment;type:varchar(20);index" json:"sentiment,omitempty"`
	MarketImpact *string        `gorm:"column:market_impact;type:varchar(20)" json:"market_impact,omitempty"`
	Urgency      *string        `gorm:"column:urgency;type:varchar(20);index" json:"urgency,omitempty"`
	KeyMetrics   datatypes.JSON `gorm:"column:key_metrics;type:jsonb" json:"key_metrics,omitempty"`

	TitleSimhash   *int64        `gorm:"column:title_simhash;type:bigint;index" json:"-"`
	ContentMinhash pq.Int64Array `gorm:"column:content_minhash;type:bigint[]" json:"-"`

	// 1024-dim pgvector literal, e.g. "[0.12,-0.3,...]".
	Embedding *string `gorm:"column:embedding;type:vector(1024)" json:"-"`

	RawMetadata      datatypes.JSON `gorm:"column:raw_metadata;type:jsonb" json:"raw_metadata,omitempty"`
	ProcessingStatus string         `gorm:"column:processing_status;type:varchar(20);not null;default:pending;index" json:"processing_status"`
	LLMProcessed     bool           `gorm:"column:llm_processed;not null;default:false" json:"llm_processed"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz;not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz;not null" json:"updated_at"`
}

func (Article) TableName() string { return "articles" }

// FetchLog records one scheduled fetch attempt. Append-only.
type FetchLog struct {
	ID            int64      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	SourceID      string     `gorm:"column:source_id;type:varchar(100);not null;index" json:"source_id"`
	StartedAt     time.Time  `gorm:"column:started_at;type:timestamptz;not null" json:"started_at"`
	CompletedAt   *time.Time `gorm:"column:completed_at;type:timestamptz" json:"completed_at,omitempty"`
	Status        string     `gorm:"column:status;type:varchar(20);not null" json:"status"` // success / partial / failed / started
	ArticlesFound int        `gorm:"column:articles_found;not null;default:0" json:"articles_found"`
	ArticlesNew   int        `gorm:"column:articles_new;not null;default:0" json:"articles_new"`
	ArticlesDedup int        `gorm:"column:articles_dedup;not null;default:0" json:"articles_dedup"`
	ErrorMessage  *string    `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	DurationMS    *int64     `gorm:"column:duration_ms;type:bigint" json:"duration_ms,omitempty"`
}

func (FetchLog) TableName() string { return "fetch_logs" }

// SourceCandidate is a discovery result awaiting validation or decision.
type SourceCandidate struct {
	ID              string         `gorm:"column:id;primaryKey;type:varchar(36)" json:"id"`
	URL             string         `gorm:"column:url;type:text;not null;uniqueIndex" json:"url"`
	Name            *string        `gorm:"column:name;type:varchar(200)" json:"name,omitempty"`
	FeedURL         *string        `gorm:"column:feed_url;type:text" json:"feed_url,omitempty"`
	Kind            *string        `gorm:"column:kind;type:varchar(20)" json:"kind,omitempty"`
	Language        *string        `gorm:"column:language;type:varchar(10)" json:"language,omitempty"`
	Categories      pq.StringArray `gorm:"column:categories;type:text[]" json:"categories,omitempty"`
	DiscoveredVia   *string        `gorm:"column:discovered_via;type:varchar(50)" json:"discovered_via,omitempty"`
	DiscoveryQuery  *string        `gorm:"column:discovery_query;type:text" json:"discovery_query,omitempty"`
	Status          string         `gorm:"column:status;type:varchar(20);not null;default:discovered;index" json:"status"`
	QualityScore    int            `gorm:"column:quality_score;not null;default:0" json:"quality_score"`
	RelevanceScore  int            `gorm:"column:relevance_score;not null;default:0" json:"relevance_score"`
	CombinedScore   int            `gorm:"column:combined_score;not null;default:0" json:"combined_score"`
	FetchSuccess    bool           `gorm:"column:fetch_success;not null;default:false" json:"fetch_success"`
	ArticlesFetched int            `gorm:"column:articles_fetched;not null;default:0" json:"articles_fetched"`
	SampleArticles  datatypes.JSON `gorm:"column:sample_articles;type:jsonb" json:"sample_articles,omitempty"`
	ValidationInfo  datatypes.JSON `gorm:"column:validation_info;type:jsonb" json:"validation_info,omitempty"`
	ErrorMessage    *string        `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	AutoApproved    bool           `gorm:"column:auto_approved;not null;default:false" json:"auto_approved"`
	ValidatedAt     *time.Time     `gorm:"column:validated_at;type:timestamptz" json:"validated_at,omitempty"`
	CreatedAt       time.Time      `gorm:"column:created_at;type:timestamptz;not null" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"column:updated_at;type:timestamptz;not null" json:"updated_at"`
}

func (SourceCandidate) TableName() string { return "source_candidates" }

// Subscription is a persistent filter plus delivery target.
type Subscription struct {
	ID             string         `gorm:"column:id;primaryKey;type:varchar(36)" json:"id"`
	Name           string         `gorm:"column:name;type:varchar(200);not null" json:"name"`
	SourceIDs      pq.StringArray `gorm:"column:source_ids;type:text[]" json:"source_ids,omitempty"`
	TransportModes pq.StringArray `gorm:"column:transport_modes;type:text[]" json:"transport_modes,omitempty"`
	Topics         pq.StringArray `gorm:"column:topics;type:text[]" json:"topics,omitempty"`
	Regions        pq.StringArray `gorm:"column:regions;type:text[]" json:"regions,omitempty"`
	Languages      pq.StringArray `gorm:"column:languages;type:text[]" json:"languages,omitempty"`
	UrgencyMin     *string        `gorm:"column:urgency_min;type:varchar(20)" json:"urgency_min,omitempty"`
	Channel        string         `gorm:"column:channel;type:varchar(20);not null" json:"channel"` // push / webhook
	ChannelConfig  datatypes.JSON `gorm:"column:channel_config;type:jsonb" json:"channel_config,omitempty"`
	Frequency      string         `gorm:"column:frequency;type:varchar(20);not null;default:realtime" json:"frequency"`
	Enabled        bool           `gorm:"column:enabled;not null;default:true" json:"enabled"`
	CreatedAt      time.Time      `gorm:"column:created_at;type:timestamptz;not null" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"column:updated_at;type:timestamptz;not null" json:"updated_at"`
}

func (Subscription) TableName() string { return "subscriptions" }

// WebhookDeliveryLog records one delivery attempt for one article.
type WebhookDeliveryLog struct {
	ID             int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	SubscriptionID string    `gorm:"column:subscription_id;type:varchar(36);not null;index" json:"subscription_id"`
	ArticleID      string    `gorm:"column:article_id;type:varchar(36);not null" json:"article_id"`
	URL            string    `gorm:"column:url;type:text;not null" json:"url"`
	StatusCode     *int      `gorm:"column:status_code" json:"status_code,omitempty"`
	Success        bool      `gorm:"column:success;not null;default:false" json:"success"`
	Attempt        int       `gorm:"column:attempt;not null;default:1" json:"attempt"`
	LatencyMS      *int64    `gorm:"column:latency_ms;type:bigint" json:"latency_ms,omitempty"`
	ErrorMessage   *string   `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	DeliveredAt    time.Time `gorm:"column:delivered_at;type:timestamptz;not null" json:"delivered_at"`
}

func (WebhookDeliveryLog) TableName() string { return "webhook_delivery_logs" }

// APIKey authenticates API callers. KeyHash is the hex SHA-256 of the
// cleartext key; the cleartext is only ever returned at creation time.
type APIKey struct {
	ID         string     `gorm:"column:id;primaryKey;type:varchar(36)" json:"id"`
	Name       string     `gorm:"column:name;type:varchar(200);not null" json:"name"`
	KeyHash    string     `gorm:"column:key_hash;type:char(64);not null;uniqueIndex" json:"-"`
	Role       string     `gorm:"column:role;type:varchar(20);not null;default:reader" json:"role"` // admin / reader / subscriber
	Enabled    bool       `gorm:"column:enabled;not null;default:true" json:"enabled"`
	CreatedAt  time.Time  `gorm:"column:created_at;type:timestamptz;not null" json:"created_at"`
	LastUsedAt *time.Time `gorm:"column:last_used_at;type:timestamptz" json:"last_used_at,omitempty"`
}

func (APIKey) TableName() string { return "api_keys" }
