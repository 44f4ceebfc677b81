package postgres

// ---- notifications ----

const upsertNotificationSQL = `
INSERT INTO notifications (
  id, user_id, type, title, message, priority, category,
  article_id, author_id, comment_id, status, personalization_score,
  delivery_channels, metadata, created_at, sent_at, read_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  sent_at = COALESCE(notifications.sent_at, EXCLUDED.sent_at),
  read_at = COALESCE(notifications.read_at, EXCLUDED.read_at)
`

const notificationColumns = `
id, user_id, type, title, message, priority, category,
article_id, author_id, comment_id, status, personalization_score,
delivery_channels, metadata, created_at, sent_at, read_at
`

const listUnreadNotificationsSQL = `
SELECT` + notificationColumns + `
FROM notifications
WHERE user_id = $1 AND status <> 'read'
ORDER BY created_at ASC
LIMIT $2
`

const listNotificationsByUserSQL = `
SELECT` + notificationColumns + `
FROM notifications
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3
`

const markNotificationsSentSQL = `
UPDATE notifications
SET status = 'sent', sent_at = $2
WHERE id = ANY($1) AND status = 'pending'
`

const markNotificationReadSQL = `
UPDATE notifications
SET status = 'read', read_at = $3
WHERE id = $1 AND user_id = $2 AND status <> 'read'
`

const markAllNotificationsReadSQL = `
UPDATE notifications
SET status = 'read', read_at = $2
WHERE user_id = $1 AND status <> 'read'
`

const countUnreadSQL = `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND status <> 'read'`

// ---- interest graph ----

const savedInterestUsersSQL = `
SELECT DISTINCT user_id FROM user_interests WHERE category_id = $1
`

const recentPositiveInteractionUsersSQL = `
SELECT DISTINCT ui.user_id
FROM user_interactions ui
JOIN articles a ON a.id = ui.article_id
WHERE a.category_id = $1
  AND ui.interaction_type IN ('like', 'save')
  AND ui.created_at >= $2
`

// legacy: preferences->'categories' is a JSON array of category ids
const preferenceDocumentUsersSQL = `
SELECT user_id FROM user_preferences
WHERE preferences -> 'categories' ? $1
`

const followersOfSQL = `
SELECT follower_id FROM author_follows WHERE author_id = $1 ORDER BY created_at ASC
`

const articleEngagedUsersSQL = `
SELECT DISTINCT user_id FROM user_interactions
WHERE article_id = $1 AND interaction_type IN ('like', 'save', 'comment')
UNION
SELECT DISTINCT author_id FROM comments WHERE article_id = $1
`

const userCategoryCountsSQL = `
SELECT c.id, c.name, COUNT(*) AS n
FROM user_interactions ui
JOIN articles a ON a.id = ui.article_id
JOIN categories c ON c.id = a.category_id
WHERE ui.user_id = $1 AND ui.created_at >= $2
GROUP BY c.id, c.name
ORDER BY n DESC, c.name ASC
LIMIT $3
`

const userInteractedArticleIDsSQL = `
SELECT DISTINCT article_id FROM user_interactions WHERE user_id = $1
`

const userTopCategoryNamesSQL = `
SELECT c.name
FROM user_interactions ui
JOIN articles a ON a.id = ui.article_id
JOIN categories c ON c.id = a.category_id
WHERE ui.user_id = $1
GROUP BY c.name
ORDER BY COUNT(*) DESC, c.name ASC
LIMIT $2
`

// ---- content read model ----

const getArticleSQL = `
SELECT id, title, category_id, author_id, published_at
FROM articles WHERE id = $1
`

const getCategorySQL = `SELECT id, name FROM categories WHERE id = $1`

const getCommentSQL = `
SELECT id, article_id, author_id, created_at FROM comments WHERE id = $1
`

const getAuthorSQL = `SELECT id, name FROM users WHERE id = $1`

const countPublishedSinceSQL = `
SELECT COUNT(*) FROM articles WHERE status = 'published' AND published_at >= $1
`

const recentArticlesInCategoriesSQL = `
SELECT id, title, category_id, author_id, published_at
FROM articles
WHERE status = 'published' AND category_id = ANY($1) AND published_at >= $2
ORDER BY published_at DESC
LIMIT $3
`

// ---- tracking ingestion ----

const insertTrackingEventSQL = `
INSERT INTO tracking_events (
  id, kind, event_type, session_id, user_id, batch_id, payload, context, occurred_at, received_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO NOTHING
`
