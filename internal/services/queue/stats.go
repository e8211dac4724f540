package queue

import "fmt"

// GetQueueStats reports broker-side depth and local consumer count.
func (q *QueueService) GetQueueStats() (map[string]interface{}, error) {
	queueInfo, err := q.channel.QueueInspect(q.queueName)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect queue %s: %w", q.queueName, err)
	}

	return map[string]interface{}{
		"name":          queueInfo.Name,
		"messages":      queueInfo.Messages,
		"consumers":     queueInfo.Consumers,
		"local_workers": q.workers.Load(),
	}, nil
}

func (q *QueueService) HealthCheck() string {
	if q.conn != nil && q.conn.IsClosed() {
		return "unhealthy: connection closed"
	}
	if q.channel == nil {
		return "unhealthy: channel not available"
	}
	if _, err := q.channel.QueueInspect(q.queueName); err != nil {
		return fmt.Sprintf("unhealthy: %v", err)
	}
	return "healthy"
}
