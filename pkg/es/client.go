// Package es 提供了与 Elasticsearch 交互的客户端功能，用于对话历史的全文检索。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"tani-assist-go/internal/config"
	"tani-assist-go/internal/model"
	"tani-assist-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// conversationMapping 对话索引的映射。文本字段使用 standard 分词器，印尼语不需要额外插件。
const conversationMapping = `{
	"mappings": {
		"properties": {
			"conv_id": { "type": "keyword" },
			"user_id": { "type": "long" },
			"timestamp": { "type": "date" },
			"user_input": { "type": "text", "analyzer": "standard" },
			"ai_response": { "type": "text", "analyzer": "standard" },
			"topic_category": { "type": "keyword" }
		}
	}
}`

// ConversationIndex 封装了对话索引的读写。
type ConversationIndex struct {
	client    *elasticsearch.Client
	indexName string
}

// InitES 初始化 Elasticsearch 客户端，并确保对话索引存在。
func InitES(esCfg config.ElasticsearchConfig) (*ConversationIndex, error) {
	cfg := elasticsearch.Config{
		Addresses: strings.Split(esCfg.Addresses, ","),
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	idx := &ConversationIndex{client: client, indexName: esCfg.IndexName}
	if err := idx.createIndexIfNotExists(); err != nil {
		return nil, err
	}
	return idx, nil
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func (c *ConversationIndex) createIndexIfNotExists() error {
	res, err := c.client.Indices.Exists([]string{c.indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	res.Body.Close()
	// 如果 res.StatusCode 是 200，说明索引已存在
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", c.indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", c.indexName, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	res, err = c.client.Indices.Create(
		c.indexName,
		c.client.Indices.Create.WithBody(strings.NewReader(conversationMapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", c.indexName, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", c.indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", c.indexName)
	return nil
}

// IndexConversation 将单条对话写入索引，以 conv_id 作为文档 ID，重复投递是幂等的。
func (c *ConversationIndex) IndexConversation(ctx context.Context, doc model.ConversationDocument) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      c.indexName,
		DocumentID: doc.ConvID,
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, c.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("索引对话到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to index conversation")
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source model.ConversationDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// SearchConversations 在某个用户的对话中检索关键词，返回按相关度排序的 conv_id。
func (c *ConversationIndex) SearchConversations(ctx context.Context, userID uint, query string, size int) ([]string, error) {
	body := map[string]interface{}{
		"size": size,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": map[string]interface{}{
					"multi_match": map[string]interface{}{
						"query":  query,
						"fields": []string{"user_input^2", "ai_response"},
					},
				},
				"filter": map[string]interface{}{
					"term": map[string]interface{}{"user_id": userID},
				},
			},
		},
		"_source": []string{"conv_id"},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}

	res, err := c.client.Search(
		c.client.Search.WithContext(ctx),
		c.client.Search.WithIndex(c.indexName),
		c.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch search error: %s", res.String())
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(sr.Hits.Hits))
	for _, h := range sr.Hits.Hits {
		ids = append(ids, h.Source.ConvID)
	}
	return ids, nil
}
